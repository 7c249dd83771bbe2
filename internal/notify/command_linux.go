//go:build linux

package notify

func command(title, body string) (string, []string, bool) {
	return "notify-send", []string{"--app-name=chrono", title, body}, true
}

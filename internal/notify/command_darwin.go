//go:build darwin

package notify

func command(title, body string) (string, []string, bool) {
	script := "display notification " + appleScriptString(body) + " with title " + appleScriptString(title)
	return "osascript", []string{"-e", script}, true
}

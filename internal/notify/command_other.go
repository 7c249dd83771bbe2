//go:build !darwin && !linux

package notify

func command(title, body string) (string, []string, bool) {
	return "", nil, false
}

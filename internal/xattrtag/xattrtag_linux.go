//go:build linux

package xattrtag

import "golang.org/x/sys/unix"

func setImpl(path, key, value string) {
	_ = unix.Setxattr(path, key, []byte(value), 0)
}

func getImpl(path, key string) (string, bool) {
	buf := make([]byte, 256)
	n, err := unix.Getxattr(path, key, buf)
	if err != nil || n <= 0 {
		return "", false
	}
	return string(buf[:n]), true
}

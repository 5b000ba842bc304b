package local

import "os"

func removeAll(path string) error {
	if path == "" || path == "/" {
		return nil
	}
	return os.RemoveAll(path)
}

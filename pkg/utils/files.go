package utils

import "path/filepath"

// CodeExt is appended to a source file name to name its TM listing.
const CodeExt = ".tm"

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// CodePath names the listing written for sourcePath: the source name with
// CodeExt appended, next to the source. An explicit out wins.
func CodePath(sourcePath, out string) (string, error) {
	if out != "" {
		return filepath.Abs(out)
	}
	fullPath, _, err := GetPathInfo(sourcePath)
	if err != nil {
		return "", err
	}
	return fullPath + CodeExt, nil
}

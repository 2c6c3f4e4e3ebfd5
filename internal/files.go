package internal

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directory returns the names of the files in the given directory
// whose names end in the given extension, sorted by name. If file is
// not a directory, it returns file itself.
func Directory(file, ext string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{file}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	names, err := f.Readdirnames(0)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if strings.HasSuffix(name, ext) {
			files = append(files, filepath.Join(file, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Without returns files without the entries that name the same path
// as exclude.
func Without(files []string, exclude string) []string {
	exclude = filepath.Clean(exclude)
	result := files[:0:0]
	for _, file := range files {
		if filepath.Clean(file) != exclude {
			result = append(result, file)
		}
	}
	return result
}

// FullPathname returns an absolute version of filename.
func FullPathname(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	wd, err := os.Getwd()
	return filepath.Join(wd, filename), err
}

// Close closes the given file, and stores the resulting error in err
// unless err already holds an error.
func Close(f *os.File, err *error) {
	if nerr := f.Close(); *err == nil {
		*err = nerr
	}
}

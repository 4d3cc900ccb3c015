// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of murk.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util holds small filesystem helpers shared by the archive and
// retention services.
package util

import (
	"compress/gzip"
	"io"
	"os"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
)

// CheckFileExists reports whether path exists.
func CheckFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DiskUsage sums the reported sizes of the entries directly in dirpath,
// in megabytes. Subdirectories count with their own entry size and are not
// descended into.
func DiskUsage(dirpath string) float64 {
	var size int64

	dir, err := os.Open(dirpath)
	if err != nil {
		cclog.Errorf("DiskUsage() error: %v", err)
		return 0
	}
	defer dir.Close()

	files, err := dir.Readdir(-1)
	if err != nil {
		cclog.Errorf("DiskUsage() error: %v", err)
		return 0
	}
	for _, file := range files {
		size += file.Size()
	}
	return float64(size) * 1e-6
}

// CompressFile gzips fileIn into fileOut and removes the original.
func CompressFile(fileIn string, fileOut string) error {
	originalFile, err := os.Open(fileIn)
	if err != nil {
		cclog.Errorf("CompressFile() error: %v", err)
		return err
	}
	defer originalFile.Close()

	gzipFile, err := os.Create(fileOut)
	if err != nil {
		cclog.Errorf("CompressFile() error: %v", err)
		return err
	}
	defer gzipFile.Close()

	gzipWriter := gzip.NewWriter(gzipFile)
	defer gzipWriter.Close()

	if _, err = io.Copy(gzipWriter, originalFile); err != nil {
		cclog.Errorf("CompressFile() error: %v", err)
		return err
	}
	gzipWriter.Flush()

	if err := os.Remove(fileIn); err != nil {
		cclog.Errorf("CompressFile() error: %v", err)
		return err
	}
	return nil
}

/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package data is a collection of tools that facilitate data loading: CSV files with features and a label
// per row, in-memory batching and downloading of remote files.
package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// FileExists returns true if filePath exists, as a file or a directory. Paths that can't be
// checked for other reasons (e.g. permissions) are reported as existing.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !errors.Is(err, fs.ErrNotExist)
}

// ReplaceTildeInDir replaces a leading "~" by the user's home directory. Other paths are
// returned unchanged.
func ReplaceTildeInDir(dir string) string {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		klog.Errorf("failed to find the home directory to expand %q: %v", dir, err)
		return dir
	}
	return filepath.Join(home, dir[1:])
}

// IsURL returns whether location is an http(s) URL, as opposed to a local path.
func IsURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// fileSHA256 returns the hex encoded SHA-256 of the file contents.
func fileSHA256(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %q to validate checksum", filePath)
	}
	defer func() { _ = f.Close() }()
	hasher := sha256.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", errors.Wrapf(err, "failed to read %q to validate checksum", filePath)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ValidateChecksum checks that the SHA-256 of the file is checkHash (hex encoded, case-insensitive).
//
// On a mismatch the file is removed (!), so a later DownloadIfMissing fetches it again.
func ValidateChecksum(filePath, checkHash string) error {
	fileHash, err := fileSHA256(filePath)
	if err != nil {
		return err
	}
	if fileHash == strings.ToLower(checkHash) {
		return nil
	}
	if removeErr := os.Remove(filePath); removeErr != nil {
		klog.Errorf("Failed to remove %q, which failed the checksum, please remove it manually: %+v", filePath, removeErr)
	}
	return errors.Errorf("file %q has sha256 %q, but %q was expected: file removed", filePath, fileHash, checkHash)
}

// CopyWithProgressBar is like io.Copy, but shows a progress bar of the bytes copied in os.Stderr.
// contentLength is -1 if unknown, in which case a spinner is shown.
func CopyWithProgressBar(dst io.Writer, src io.Reader, contentLength int64) (n int64, err error) {
	description := "downloading"
	if contentLength >= 0 {
		description = fmt.Sprintf("downloading %s", humanize.IBytes(uint64(contentLength)))
	}
	bar := progressbar.NewOptions64(contentLength,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(os.Stderr) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	n, err = io.Copy(io.MultiWriter(dst, bar), src)
	_ = bar.Finish()
	return n, err
}

// Download fetches fileURL into filePath, creating its directory if needed, and returns the number of
// bytes written.
//
// The contents are first written to a temporary file in the same directory, which is renamed to
// filePath only once complete: an interrupted download never leaves a partial filePath behind.
func Download(fileURL, filePath string, showProgressBar bool) (size int64, err error) {
	filePath = ReplaceTildeInDir(filePath)
	dir := filepath.Dir(filePath)
	if err = os.MkdirAll(dir, 0777); err != nil {
		return 0, errors.Wrapf(err, "failed to create directory %q", dir)
	}
	resp, err := http.Get(fileURL)
	if err != nil {
		return 0, errors.Wrapf(err, "failed downloading %q", fileURL)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("failed downloading %q: %s", fileURL, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.partial")
	if err != nil {
		return 0, errors.Wrapf(err, "failed creating temporary file in %q", dir)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if showProgressBar {
		size, err = CopyWithProgressBar(tmp, resp.Body, resp.ContentLength)
	} else {
		size, err = io.Copy(tmp, resp.Body)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "downloading %q to %q", fileURL, filePath)
	}
	if err = tmp.Close(); err != nil {
		return 0, errors.Wrapf(err, "failed closing %q", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), filePath); err != nil {
		return 0, errors.Wrapf(err, "failed to move download to %q", filePath)
	}
	klog.V(1).Infof("downloaded %s from %q to %q", humanize.IBytes(uint64(size)), fileURL, filePath)
	return size, nil
}

// DownloadIfMissing downloads fileURL into filePath, unless filePath already exists.
//
// If checkHash is not empty, the file (downloaded or not) must have that SHA-256, see ValidateChecksum.
func DownloadIfMissing(fileURL, filePath, checkHash string, showProgressBar bool) error {
	filePath = ReplaceTildeInDir(filePath)
	if !FileExists(filePath) {
		if _, err := Download(fileURL, filePath, showProgressBar); err != nil {
			return err
		}
	}
	if checkHash == "" {
		return nil
	}
	return ValidateChecksum(filePath, checkHash)
}

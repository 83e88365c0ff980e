/*
	Copyright (c) 2023 Adrian Batzill
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	logging.go: Initialize logging, watch log file size and rotate, delete old logs

*/

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ricochet2200/go-disk-usage/du"
	log "github.com/sirupsen/logrus"
)

const debugLogFile = "imud.log"

var (
	logDirf       string // Set from config.
	debugLogf     string
	logFileHandle *os.File
)

func getImudLogFiles() []string {
	entries, err := os.ReadDir(logDirf)
	imudLogs := make([]string, 0)
	if err != nil {
		return imudLogs
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), debugLogFile+".") {
			imudLogs = append(imudLogs, filepath.Join(logDirf, e.Name()))
		}
	}
	sort.Strings(imudLogs)
	return imudLogs
}

func rotateLogs() {
	imudLogs := getImudLogFiles()

	// rename suffix, remove if > 9
	for i := len(imudLogs) - 1; i >= 0; i-- {
		parts := strings.Split(imudLogs[i], ".")
		logNum, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}

		newPath := filepath.Join(logDirf, debugLogFile+"."+strconv.Itoa(logNum+1))

		if logNum == 9 {
			os.Remove(imudLogs[i])
		} else {
			os.Rename(imudLogs[i], newPath)
		}
	}

	// Now rename current log file and re-open
	os.Rename(debugLogf, debugLogf+".1")
	openLogFile()
}

func deleteOldestLog() int64 {
	logs := getImudLogFiles()
	if len(logs) == 0 {
		return 0
	}
	oldest := logs[len(logs)-1]
	info, err := os.Stat(oldest)
	if err != nil {
		return 0
	}
	os.Remove(oldest)
	return info.Size()
}

// logRotateWatcher keeps the current log below 10MB and frees old logs
// when the disk fills up.
func logRotateWatcher() {
	for {
		time.Sleep(30 * time.Second)

		info, err := os.Stat(debugLogf)
		if err != nil {
			continue
		}
		if info.Size() > 10*1024*1024 {
			rotateLogs()
		}

		usage := du.NewDiskUsage(logDirf)
		for usage.Available() < 50*1024*1024 {
			if deleteOldestLog() == 0 {
				break
			}
			usage = du.NewDiskUsage(logDirf)
		}
	}
}

func openLogFile() {
	fp, err := os.OpenFile(debugLogf, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Warnf("failed to open %s: %s", debugLogf, err)
		return
	}
	if logFileHandle != nil {
		logFileHandle.Close()
	}
	logFileHandle = fp
	log.SetOutput(io.MultiWriter(fp, os.Stdout))
}

func initLogging(logDir string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})

	logDirf = logDir
	if logDirf == "" {
		// log to stdout only
		return nil
	}
	if err := os.MkdirAll(logDirf, 0755); err != nil {
		return fmt.Errorf("creating log dir %s: %w", logDirf, err)
	}
	debugLogf = filepath.Join(logDirf, debugLogFile)
	openLogFile()
	go logRotateWatcher()
	return nil
}

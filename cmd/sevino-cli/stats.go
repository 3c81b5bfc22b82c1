package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func runStats(args []string) {
	data, err := apiData("GET", "/api/stats", nil)
	if err != nil {
		fatal(err.Error())
	}

	var stats struct {
		Buckets    int    `json:"buckets"`
		Objects    int    `json:"objects"`
		TotalBytes int64  `json:"total_bytes"`
		StartedAt  string `json:"started_at"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		fatal("parse response: " + err.Error())
	}

	fmt.Printf("Buckets:     %d\n", stats.Buckets)
	fmt.Printf("Objects:     %d\n", stats.Objects)
	fmt.Printf("Total size:  %s\n", formatSize(stats.TotalBytes))
	fmt.Printf("Started at:  %s\n", stats.StartedAt)
}

func runActivity(args []string) {
	limit := 100
	for _, arg := range args {
		if strings.HasPrefix(arg, "--limit=") {
			if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit=")); err == nil {
				limit = n
			}
		}
	}

	data, err := apiData("GET", fmt.Sprintf("/api/activity?limit=%d", limit), nil)
	if err != nil {
		fatal(err.Error())
	}

	var entries []struct {
		Time   int64  `json:"time"`
		Op     string `json:"op"`
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
		Size   int64  `json:"size"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		fatal("parse response: " + err.Error())
	}

	if len(entries) == 0 {
		fmt.Println("No activity recorded.")
		return
	}

	headers := []string{"TIME", "OP", "BUCKET", "KEY", "SIZE"}
	var rows [][]string
	for _, e := range entries {
		rows = append(rows, []string{
			time.Unix(0, e.Time).Format("2006-01-02 15:04:05"),
			e.Op,
			e.Bucket,
			e.Key,
			formatSize(e.Size),
		})
	}
	printTable(headers, rows)
}

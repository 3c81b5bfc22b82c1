package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

func runBucket(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: sevino-cli bucket <subcommand>

Subcommands:
  list                List all buckets
  create <name>       Create a bucket
  delete <name>       Delete a bucket
  info <name>         Show bucket details`)
		os.Exit(1)
	}

	switch args[0] {
	case "list", "ls":
		bucketList()
	case "create":
		if len(args) < 2 {
			fatal("bucket create requires a bucket name")
		}
		bucketCreate(args[1])
	case "delete", "rm":
		if len(args) < 2 {
			fatal("bucket delete requires a bucket name")
		}
		bucketDelete(args[1])
	case "info":
		if len(args) < 2 {
			fatal("bucket info requires a bucket name")
		}
		bucketInfo(args[1])
	default:
		fatal("unknown bucket subcommand: " + args[0])
	}
}

func bucketList() {
	data, err := apiData("GET", "/api/buckets", nil)
	if err != nil {
		fatal(err.Error())
	}

	var result struct {
		Buckets []struct {
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		fatal("parse response: " + err.Error())
	}

	if len(result.Buckets) == 0 {
		fmt.Println("No buckets found.")
		return
	}

	headers := []string{"NAME", "CREATED"}
	var rows [][]string
	for _, b := range result.Buckets {
		rows = append(rows, []string{b.Name, b.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	printTable(headers, rows)
}

func bucketCreate(name string) {
	payload, _ := json.Marshal(map[string]string{"name": name})
	if _, err := apiData("POST", "/api/buckets", bytes.NewReader(payload)); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Bucket '%s' created.\n", name)
}

func bucketDelete(name string) {
	if _, err := apiData("DELETE", "/api/buckets/"+name, nil); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Bucket '%s' deleted.\n", name)
}

func bucketInfo(name string) {
	data, err := apiData("GET", "/api/buckets/"+name, nil)
	if err != nil {
		fatal(err.Error())
	}

	var info map[string]interface{}
	if err := json.Unmarshal(data, &info); err != nil {
		fatal("parse response: " + err.Error())
	}

	out, _ := json.MarshalIndent(info, "", "  ")
	fmt.Println(string(out))
}

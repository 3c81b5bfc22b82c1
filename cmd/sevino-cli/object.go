package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func runObject(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: sevino-cli object <subcommand>

Subcommands:
  ls <bucket> [--prefix=<p>] [--delimiter=<d>] [--max-keys=<n>] [--etag=<e>]
                                                      List objects
  put <bucket> <key> <file> [--content-type=<ct>] [--dedup=<mode>] [--custom=<json>]
                                                      Upload object
  get <bucket> <key> <file>                           Download object
  rm <bucket> <key>                                   Delete object
  stat <bucket> <key>                                 Show object metadata
  versions <bucket> <key>                             List object versions`)
		os.Exit(1)
	}

	switch args[0] {
	case "ls", "list":
		objectList(args[1:])
	case "put", "upload":
		objectPut(args[1:])
	case "get", "download":
		objectGet(args[1:])
	case "rm", "delete":
		objectDelete(args[1:])
	case "stat", "metadata":
		objectStat(args[1:])
	case "versions":
		objectVersions(args[1:])
	default:
		fatal("unknown object subcommand: " + args[0])
	}
}

func objectList(args []string) {
	if len(args) < 1 {
		fatal("object ls requires a bucket name")
	}
	bucket := args[0]

	params := url.Values{}
	for _, arg := range args[1:] {
		switch {
		case strings.HasPrefix(arg, "--prefix="):
			params.Set("prefix", strings.TrimPrefix(arg, "--prefix="))
		case strings.HasPrefix(arg, "--delimiter="):
			params.Set("delimiter", strings.TrimPrefix(arg, "--delimiter="))
		case strings.HasPrefix(arg, "--max-keys="):
			if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--max-keys=")); err == nil {
				params.Set("max_keys", strconv.Itoa(n))
			}
		case strings.HasPrefix(arg, "--etag="):
			params.Set("etag_filter", strings.TrimPrefix(arg, "--etag="))
		}
	}

	path := "/api/buckets/" + bucket + "/objects"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	data, err := apiData("GET", path, nil)
	if err != nil {
		fatal(err.Error())
	}

	var result struct {
		Objects []struct {
			Key          string    `json:"key"`
			Size         int64     `json:"size"`
			LastModified time.Time `json:"last_modified"`
			ETag         string    `json:"etag"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		fatal("parse response: " + err.Error())
	}

	if len(result.Objects) == 0 {
		fmt.Println("No objects found.")
		return
	}

	headers := []string{"KEY", "SIZE", "LAST MODIFIED", "ETAG"}
	var rows [][]string
	for _, obj := range result.Objects {
		rows = append(rows, []string{
			obj.Key,
			formatSize(obj.Size),
			obj.LastModified.Format("2006-01-02 15:04:05"),
			strings.Trim(obj.ETag, "\""),
		})
	}
	printTable(headers, rows)
	fmt.Printf("\n%d object(s)\n", len(result.Objects))
}

func objectPut(args []string) {
	if len(args) < 3 {
		fatal("object put requires: <bucket> <key> <file>")
	}
	bucket, key, filePath := args[0], args[1], args[2]

	params := url.Values{}
	for _, arg := range args[3:] {
		switch {
		case strings.HasPrefix(arg, "--content-type="):
			params.Set("content_type", strings.TrimPrefix(arg, "--content-type="))
		case strings.HasPrefix(arg, "--dedup="):
			params.Set("deduplication_mode", strings.TrimPrefix(arg, "--dedup="))
		case strings.HasPrefix(arg, "--custom="):
			params.Set("custom", strings.TrimPrefix(arg, "--custom="))
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fatal(err.Error())
	}

	path := fmt.Sprintf("/api/buckets/%s/objects/%s", bucket, key)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	respData, err := apiData("PUT", path, bytes.NewReader(data))
	if err != nil {
		fatal(err.Error())
	}

	var obj struct {
		ETag string `json:"etag"`
	}
	json.Unmarshal(respData, &obj)

	fmt.Printf("Uploaded '%s' to %s/%s (%s)\n", filePath, bucket, key, formatSize(int64(len(data))))
	if obj.ETag != "" {
		fmt.Printf("  ETag: %s\n", strings.Trim(obj.ETag, "\""))
	}
}

func objectGet(args []string) {
	if len(args) < 3 {
		fatal("object get requires: <bucket> <key> <file>")
	}
	bucket, key, filePath := args[0], args[1], args[2]

	path := fmt.Sprintf("/api/buckets/%s/objects/%s", bucket, key)
	resp, err := apiRequest("GET", path, nil)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()

	// The raw download endpoint signals errors with a bare status code.
	if resp.StatusCode != 200 {
		fatal(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	out, err := os.Create(filePath)
	if err != nil {
		fatal(err.Error())
	}
	defer out.Close()

	pw := &progressWriter{w: out, total: resp.ContentLength}
	n, err := io.Copy(pw, resp.Body)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Fprintln(os.Stderr)

	fmt.Printf("Downloaded %s/%s to '%s' (%s)\n", bucket, key, filePath, formatSize(n))
}

func objectDelete(args []string) {
	if len(args) < 2 {
		fatal("object rm requires: <bucket> <key>")
	}
	bucket, key := args[0], args[1]

	if _, err := apiData("DELETE", fmt.Sprintf("/api/buckets/%s/objects/%s", bucket, key), nil); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Deleted %s/%s\n", bucket, key)
}

func objectStat(args []string) {
	if len(args) < 2 {
		fatal("object stat requires: <bucket> <key>")
	}
	bucket, key := args[0], args[1]

	data, err := apiData("GET", fmt.Sprintf("/api/buckets/%s/objects/%s/metadata", bucket, key), nil)
	if err != nil {
		fatal(err.Error())
	}

	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		fatal("parse response: " + err.Error())
	}

	out, _ := json.MarshalIndent(meta, "", "  ")
	fmt.Println(string(out))
}

func objectVersions(args []string) {
	if len(args) < 2 {
		fatal("object versions requires: <bucket> <key>")
	}
	bucket, key := args[0], args[1]

	data, err := apiData("GET", fmt.Sprintf("/api/buckets/%s/objects/%s/versions", bucket, key), nil)
	if err != nil {
		fatal(err.Error())
	}

	var versions []struct {
		VersionID    *string   `json:"version_id"`
		Size         int64     `json:"size"`
		ETag         string    `json:"etag"`
		LastModified time.Time `json:"last_modified"`
	}
	if err := json.Unmarshal(data, &versions); err != nil {
		fatal("parse response: " + err.Error())
	}

	if len(versions) == 0 {
		fmt.Println("No versions found.")
		return
	}

	headers := []string{"VERSION", "SIZE", "ETAG", "LAST MODIFIED"}
	var rows [][]string
	for _, v := range versions {
		ver := "-"
		if v.VersionID != nil {
			ver = *v.VersionID
		}
		rows = append(rows, []string{
			ver,
			formatSize(v.Size),
			strings.Trim(v.ETag, "\""),
			v.LastModified.Format("2006-01-02 15:04:05"),
		})
	}
	printTable(headers, rows)
}

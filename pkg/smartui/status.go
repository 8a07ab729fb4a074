package smartui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/visreg/pkg/types"
	"github.com/tidwall/gjson"
)

// errPending marks a status response whose comparison is not finished yet.
var errPending = errors.New("comparison pending")

var (
	matchedStatuses  = []string{"approved", "passed", "no changes", "matched"}
	baselineStatuses = []string{"new", "baseline", "base"}
	mismatchStatuses = []string{"changes found", "rejected", "failed", "under review"}
	pendingStatuses  = []string{"", "pending", "processing", "in progress", "queued", "running"}
)

func oneOf(status string, set []string) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

// ParseStatus interprets a fetchScreenshotStatus response for name. The
// response is accepted both wrapped in a "data" object and bare. It returns
// errPending while the service is still comparing, and a plain error when the
// response is malformed or reports a failure.
func ParseStatus(raw, name string) (types.CheckpointResult, error) {
	if !gjson.Valid(raw) {
		return types.CheckpointResult{}, fmt.Errorf("malformed status response: %.200q", raw)
	}

	root := gjson.Parse(raw)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}

	if msg := serviceError(root); msg != "" {
		return types.CheckpointResult{}, fmt.Errorf("service reported an error: %s", msg)
	}

	entry, found, recognized := findEntry(root, name)
	if !recognized {
		return types.CheckpointResult{}, fmt.Errorf("unrecognized status response: %.200q", raw)
	}
	if !found {
		return types.CheckpointResult{}, errPending
	}

	status := strings.ToLower(strings.TrimSpace(entry.Get("screenshotStatus").String()))
	result := types.CheckpointResult{
		Status:         entry.Get("screenshotStatus").String(),
		DiffPercentage: entry.Get("mismatchPercentage").Float(),
		Raw:            raw,
	}

	switch {
	case oneOf(status, pendingStatuses):
		return types.CheckpointResult{}, errPending
	case oneOf(status, matchedStatuses):
		result.Matched = true
	case oneOf(status, baselineStatuses):
		result.Matched = true
		result.BaselineEstablished = true
	case oneOf(status, mismatchStatuses):
		result.Matched = false
	default:
		return types.CheckpointResult{}, fmt.Errorf("unrecognized screenshot status %q", result.Status)
	}

	return result, nil
}

func serviceError(root gjson.Result) string {
	if e := root.Get("error"); e.Exists() {
		if msg := e.Get("message").String(); msg != "" {
			return msg
		}
		if msg := e.String(); msg != "" && msg != "null" && msg != "false" {
			return msg
		}
	}
	if strings.EqualFold(root.Get("status").String(), "error") || strings.EqualFold(root.Get("status").String(), "failure") {
		if msg := root.Get("message").String(); msg != "" {
			return msg
		}
		return "status " + root.Get("status").String()
	}
	return ""
}

// findEntry locates the screenshot named name, either inside a
// screenshotsData array or as the bare root object. recognized is false when
// the response has none of the known shapes.
func findEntry(root gjson.Result, name string) (entry gjson.Result, found, recognized bool) {
	if list := root.Get("screenshotsData"); list.Exists() {
		list.ForEach(func(_, v gjson.Result) bool {
			if v.Get("screenshotName").String() == name {
				entry, found = v, true
				return false
			}
			return true
		})
		return entry, found, true
	}

	if root.Get("screenshotStatus").Exists() {
		if n := root.Get("screenshotName"); n.Exists() && n.String() != name {
			return gjson.Result{}, false, true
		}
		return root, true, true
	}

	// A build that has not produced screenshot data yet.
	if root.Get("buildStatus").Exists() {
		return gjson.Result{}, false, true
	}

	return gjson.Result{}, false, false
}

// parseAck checks the response of a takeScreenshot command. An empty
// response is accepted; the farm does not always answer.
func parseAck(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !gjson.Valid(raw) {
		return fmt.Errorf("malformed screenshot response: %.200q", raw)
	}
	root := gjson.Parse(raw)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	if msg := serviceError(root); msg != "" {
		return fmt.Errorf("service rejected screenshot: %s", msg)
	}
	return nil
}

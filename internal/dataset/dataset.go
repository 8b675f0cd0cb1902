// File: internal/dataset/dataset.go
// Description: Access to bug-injection benchmark records stored as JSONL.
// Each record names a repository instance, the defect patch, and the test
// batches to verify against it.

package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/revet-dev/revet/internal/verify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInstanceNotFound reports a lookup for an instance id absent from the
// dataset file.
var ErrInstanceNotFound = errors.New("instance not found in dataset")

// TestList is a batch of test identifiers. Records carry it either as a JSON
// array or as a single delimited string; both decode to the same normalized
// form.
type TestList []string

// UnmarshalJSON accepts ["a::b","c::d"] as well as "[a::b, c::d]".
func (l *TestList) UnmarshalJSON(data []byte) error {
	var native []string
	if err := json.Unmarshal(data, &native); err == nil {
		normalized, nerr := verify.Normalize(native)
		if nerr != nil {
			return nerr
		}
		*l = normalized
		return nil
	}

	var delimited string
	if err := json.Unmarshal(data, &delimited); err == nil {
		parsed, perr := verify.ParseList(delimited)
		if perr != nil {
			return perr
		}
		*l = parsed
		return nil
	}

	return fmt.Errorf("%w: %s", verify.ErrInvalidTestSpec, string(data))
}

// Instance is one benchmark record.
type Instance struct {
	InstanceID string   `json:"instance_id"`
	Repo       string   `json:"repo"`
	Patch      string   `json:"patch"`
	FailToPass TestList `json:"FAIL_TO_PASS"`
	PassToPass TestList `json:"PASS_TO_PASS"`
}

// RepoDirName derives the local checkout directory name from the instance id.
// Ids follow owner__repo.<basecommit>.<bugtype>__<hash>.
func (i Instance) RepoDirName() (string, error) {
	head, _, err := i.splitID()
	if err != nil {
		return "", err
	}
	parts := strings.Split(head, "__")
	return parts[len(parts)-1], nil
}

// BaseCommit extracts the base revision encoded in the instance id.
func (i Instance) BaseCommit() (string, error) {
	_, commit, err := i.splitID()
	return commit, err
}

func (i Instance) splitID() (repoPart, commit string, err error) {
	parts := strings.Split(i.InstanceID, ".")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed instance id %q", i.InstanceID)
	}
	return parts[0], parts[1], nil
}

// LoadInstance streams the JSONL dataset at path and returns the record with
// the given instance id.
func LoadInstance(path, instanceID string) (Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return Instance{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Records carry whole patches; the default token size is far too small.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var inst Instance
		if err := json.Unmarshal([]byte(line), &inst); err != nil {
			return Instance{}, fmt.Errorf("dataset line %d: %w", lineNo, err)
		}
		if inst.InstanceID == instanceID {
			return inst, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Instance{}, fmt.Errorf("reading dataset: %w", err)
	}
	return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
}

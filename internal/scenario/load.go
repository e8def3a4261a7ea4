package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pabench/internal/match"
	"pabench/internal/snapshot"
)

const (
	DataFile = "data.json"
	TaskFile = "task.json"
	Prefix   = "scenario_"
)

// ExpectationFiles are tried in order inside a scenario directory.
var ExpectationFiles = []string{"verifier.yml", "verifier.yaml", "verifier.json"}

var ErrNotFound = errors.New("scenario not found")

// Loader reads scenario directories below BasePath.
type Loader struct {
	BasePath string
	Keys     snapshot.Keys
}

func NewLoader(basePath string, keys snapshot.Keys) Loader {
	return Loader{BasePath: basePath, Keys: keys}
}

func (l Loader) keys() snapshot.Keys {
	k := l.Keys
	if k.Mailbox == "" {
		k.Mailbox = snapshot.DefaultMailboxKey
	}
	if k.Calendar == "" {
		k.Calendar = snapshot.DefaultCalendarKey
	}
	return k
}

// List returns the scenario ids under BasePath, sorted. A missing base
// directory yields an empty list.
func (l Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.BasePath)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), Prefix) {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads data.json, task.json and the expectation file of one scenario
// and returns it with its expectation validated.
func (l Loader) Load(id string) (Scenario, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Scenario{}, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	dir := filepath.Join(l.BasePath, id)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return Scenario{}, fmt.Errorf("%w: %s at %s", ErrNotFound, id, dir)
	}
	sc := Scenario{ID: id, Path: dir}

	rawData, err := os.ReadFile(filepath.Join(dir, DataFile))
	if err != nil {
		return Scenario{}, fmt.Errorf("%w: %s: read %s: %v", ErrNotFound, id, DataFile, err)
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(rawData, &data); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: parse %s: %w", id, DataFile, err)
	}
	keys := l.keys()
	sc.Mailbox = data[keys.Mailbox]
	sc.Calendar = data[keys.Calendar]
	if len(sc.Mailbox) == 0 || len(sc.Calendar) == 0 || string(sc.Mailbox) == "null" || string(sc.Calendar) == "null" {
		return Scenario{}, fmt.Errorf("scenario %s: data must define both %q and %q states", id, keys.Mailbox, keys.Calendar)
	}

	rawTask, err := os.ReadFile(filepath.Join(dir, TaskFile))
	if err != nil {
		return Scenario{}, fmt.Errorf("%w: %s: read %s: %v", ErrNotFound, id, TaskFile, err)
	}
	var task Task
	if err := json.Unmarshal(rawTask, &task); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: parse %s: %w", id, TaskFile, err)
	}
	sc.Description = task.Description
	if sc.Description == "" {
		sc.Description = "No description provided"
	}
	var today string
	if raw, ok := data["today"]; ok {
		if err := json.Unmarshal(raw, &today); err != nil {
			return Scenario{}, fmt.Errorf("scenario %s: today must be a date string: %w", id, err)
		}
	}
	if today == "" {
		today = task.Today
	}
	sc.Today = today

	exp, err := l.readExpectation(dir)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	if err := sc.resolveSeed(&exp); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	sc.Expect, err = Normalize(exp)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	return sc, nil
}

// SeedState decodes the scenario's own mailbox and calendar states.
func (sc Scenario) SeedState() (snapshot.State, error) {
	return snapshot.FromParts(sc.Mailbox, sc.Calendar)
}

func (sc Scenario) resolveSeed(exp *Expectation) error {
	if exp.Seed != nil || exp.SeedEmail == "" {
		return nil
	}
	st, err := sc.SeedState()
	if err != nil {
		return err
	}
	m, ok := match.FindEmailByID(st.Emails, exp.SeedEmail)
	if !ok {
		return &ValidationError{Issues: []Issue{{Field: "seed_email", Message: fmt.Sprintf("email %q not in seed mailbox", exp.SeedEmail)}}}
	}
	exp.Seed = seedFromEmail(m)
	return nil
}

func (l Loader) readExpectation(dir string) (Expectation, error) {
	for _, name := range ExpectationFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Expectation{}, fmt.Errorf("read %s: %w", name, err)
		}
		return ParseExpectation(data, path)
	}
	return Expectation{}, fmt.Errorf("%w: no %s", ErrNotFound, strings.Join(ExpectationFiles, "/"))
}

// ParseExpectation decodes a single YAML or JSON document, rejecting
// unknown fields. The format is picked from the file extension.
func ParseExpectation(data []byte, path string) (Expectation, error) {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return parseJSONExpectation(data)
	}
	return parseYAMLExpectation(data)
}

func parseJSONExpectation(data []byte) (Expectation, error) {
	var exp Expectation
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&exp); err != nil {
		return Expectation{}, fmt.Errorf("parse json: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Expectation{}, fmt.Errorf("parse json: multiple documents are not supported")
		}
		return Expectation{}, fmt.Errorf("parse json: %w", err)
	}
	return exp, nil
}

func parseYAMLExpectation(data []byte) (Expectation, error) {
	var exp Expectation
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&exp); err != nil {
		return Expectation{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Expectation{}, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return Expectation{}, fmt.Errorf("parse yaml: %w", err)
	}
	return exp, nil
}

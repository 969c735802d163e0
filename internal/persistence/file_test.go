package persistence_test

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mdtb/wifitest/internal/persistence"
)

type archivable struct {
	Scenario string
	RttMs    float64
}

func TestWriteResult(t *testing.T) {
	datadir := t.TempDir()
	in := archivable{Scenario: "discovery_latency", RttMs: 3.5}

	path, err := persistence.WriteResult(datadir, "aware", "discovery_latency", in)
	if err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	prefix := fmt.Sprintf("%s/aware/%s/aware-discovery_latency-",
		datadir, time.Now().UTC().Format("2006/01/02"))
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, ".json.gz") {
		t.Errorf("unexpected archive path: %s", path)
	}

	fp, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	var out archivable
	if err := json.Unmarshal(content, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestNewRejectsUnwritableDatadir(t *testing.T) {
	file := t.TempDir() + "/not-a-dir"
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := persistence.New(file, "aware", "scenario"); err == nil {
		t.Error("New succeeded with a file as datadir")
	}
}

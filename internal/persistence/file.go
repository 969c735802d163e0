// Package persistence archives scenario results as gzip-compressed JSON,
// laid out as datadir/datatype/yyyy/mm/dd/ so autoloading pipelines can pick
// them up by date.
package persistence

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
)

// Archive is the file where one scenario result is saved.
type Archive struct {
	// Path is the full path of the archive file.
	Path string

	writer io.WriteCloser
	fp     *os.File
}

// New creates an Archive under datadir for the given datatype (the suite,
// e.g. "aware") and scenario name. The file name carries the creation
// timestamp and a fresh UUID so concurrent runs never collide.
func New(datadir, datatype, scenario string) (*Archive, error) {
	timestamp := time.Now().UTC()
	dir := path.Join(datadir, datatype, timestamp.Format("2006/01/02"))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	filepath := path.Join(dir, datatype+"-"+scenario+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid.NewString()+".json.gz")
	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &Archive{
		Path:   filepath,
		writer: writer,
		fp:     fp,
	}, nil
}

// Write writes a JSON representation of result to this file.
func (a *Archive) Write(result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = a.writer.Write(data)
	return err
}

// Close closes the gzip writer and the file.
func (a *Archive) Close() error {
	err := a.writer.Close()
	if err != nil {
		a.fp.Close()
		return err
	}
	return a.fp.Close()
}

// WriteResult archives result in one shot and returns the file path.
func WriteResult(datadir, datatype, scenario string, result interface{}) (string, error) {
	a, err := New(datadir, datatype, scenario)
	if err != nil {
		return "", err
	}
	if err := a.Write(result); err != nil {
		a.Close()
		return "", err
	}
	return a.Path, a.Close()
}

package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"
	"github.com/mdtb/wifitest/pkg/results"

	"cloud.google.com/go/bigquery"
)

var scenarioSchema string

func init() {
	flag.StringVar(&scenarioSchema, "scenario", "/var/spool/datatypes/scenario.json", "filename to write scenario result schema")
}

func main() {
	flag.Parse()
	// Generate and save the schema for autoloading.
	result := results.ScenarioResult{}
	sch, err := bigquery.InferSchema(result)
	rtx.Must(err, "failed to generate scenario result schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal scenario result schema")
	err = os.WriteFile(scenarioSchema, b, 0o644)
	rtx.Must(err, "failed to write scenario result schema")
}

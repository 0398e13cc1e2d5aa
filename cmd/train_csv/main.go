// Command train_csv runs the tabular pipeline offline: it loads a CSV file,
// trains a model and prints the run summary, optionally serving one
// prediction from a probe row.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"mllab/dataset"
	"mllab/session"
)

func main() {
	csvPath := flag.String("csv", "", "path to the CSV dataset")
	target := flag.String("target", "", "target column (default: last column)")
	task := flag.String("task", "", "force task: classification or regression")
	probe := flag.String("probe", "", "optional probe row, col=val pairs separated by commas")
	seed := flag.Int64("seed", 0, "rng seed for reproducible runs")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("csv is required")
	}

	data, err := os.ReadFile(*csvPath)
	if err != nil {
		log.Fatalf("failed to read csv: %v", err)
	}

	cfg := session.DefaultConfig()
	cfg.Seed = *seed
	rec := &memoryRecorder{}
	sess := session.New(cfg, nil, progressSink{}, rec)
	if err := sess.SelectMode(dataset.ModeTabular); err != nil {
		log.Fatalf("failed to select mode: %v", err)
	}

	report, err := sess.IngestCSV(data)
	if err != nil {
		log.Fatalf("failed to ingest csv: %v", err)
	}
	log.Printf("ingested %d rows (%d dropped)", report.RowsIngested, report.RowsDropped)

	job, err := sess.StartTraining(session.TrainRequest{
		TargetColumn: *target,
		Task:         dataset.Task(*task),
	})
	if err != nil {
		log.Fatalf("failed to start training: %v", err)
	}
	if err := job.Wait(); err != nil {
		log.Fatalf("training failed: %v", err)
	}

	run := rec.run
	log.Printf("run %s done: task=%s samples=%d features=%d final_loss=%.4f val_loss=%.4f val_accuracy=%.1f%% duration=%dms",
		run.RunID, run.Task, run.Samples, run.Features, run.FinalLoss, run.ValLoss, run.ValAcc, run.DurationMS)

	if *probe != "" {
		row, err := parseProbe(*probe)
		if err != nil {
			log.Fatalf("invalid probe: %v", err)
		}
		pred, err := sess.Predict(row)
		if err != nil {
			log.Fatalf("prediction failed: %v", err)
		}
		out, _ := json.MarshalIndent(pred, "", "  ")
		fmt.Println(string(out))
	}
}

// parseProbe turns "age=34,city=berlin" into a tabular row.
func parseProbe(raw string) (dataset.TabularRow, error) {
	values := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return dataset.TabularRow{}, fmt.Errorf("expected col=val, got %q", pair)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return dataset.TabularRow{Values: values}, nil
}

type progressSink struct{}

func (progressSink) Publish(event string, payload interface{}) {
	if event != "training_progress" {
		return
	}
	if msg, err := json.Marshal(payload); err == nil {
		log.Printf("progress: %s", msg)
	}
}

// memoryRecorder keeps the last run summary for the final report.
type memoryRecorder struct {
	run session.RunRecord
}

func (m *memoryRecorder) RecordRun(run session.RunRecord) error {
	m.run = run
	return nil
}

func (m *memoryRecorder) RecordPrediction(session.PredictionRecord) error { return nil }

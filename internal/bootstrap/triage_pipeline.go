package bootstrap

import (
	"context"
	"time"

	"github.com/Tanay2104/Smart-Email/adapter/in/worker"
	"github.com/Tanay2104/Smart-Email/core/service/classification"
)

// NewPipeline opens the catalog and assembles the scoring pipeline.
func (d *Dependencies) NewPipeline(ctx context.Context) (*classification.ScorePipeline, error) {
	catalog, err := d.OpenCatalog(ctx)
	if err != nil {
		return nil, err
	}

	scorer := classification.NewRuleScorer(classification.RuleConfig{
		ImportantDomains:   d.Heuristics.ImportantDomains,
		Keywords:           d.Heuristics.Keywords,
		DocumentExtensions: d.Heuristics.DocumentExtensions,
		RecencyWindow:      d.recencyWindow(),
	}, d.Log)

	pipelineConfig := classification.DefaultScorePipelineConfig()
	pipelineConfig.GateThreshold = d.Config.GateThreshold

	return classification.NewScorePipeline(&classification.ScorePipelineDeps{
		Embedder:   d.Embedder,
		Classifier: classification.NewDomainClassifier(catalog),
		Scorer:     scorer,
		Refiner:    d.Refiner,
		Logger:     d.Log,
	}, pipelineConfig), nil
}

// NewBatchRunner wires the pipeline to the worker pool and result sinks.
func (d *Dependencies) NewBatchRunner(pipeline worker.Processor) *worker.BatchRunner {
	return worker.NewBatchRunner(pipeline, &worker.BatchConfig{
		Workers: d.Config.WorkerMax,
		TopN:    d.Config.TopN,
	}, d.Log, d.Sinks...)
}

// recencyWindow prefers RECENCY_DAYS over the heuristics file.
func (d *Dependencies) recencyWindow() time.Duration {
	if d.Config.RecencyDays > 0 {
		return time.Duration(d.Config.RecencyDays) * 24 * time.Hour
	}
	return d.Heuristics.RecencyWindow()
}

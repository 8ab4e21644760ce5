// Package process drains batches of AI extraction results through the
// decision engine.
package process

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/jwhan-dev/selfheal/internal/engine"
	"github.com/jwhan-dev/selfheal/internal/intake"
)

// Result holds the counters of a batch run.
type Result struct {
	Processed  int
	Filled     int
	Reconciled int
	Enrolled   int
	Flagged    int
	Unchanged  int
	Errors     int
}

// record is one extraction result as emitted by the extraction worker:
// one JSON object per line.
type record struct {
	ArticleID         *int64           `json:"article_id"`
	Entity            intake.EntityRef `json:"entity"`
	Field             string           `json:"field"`
	Value             string           `json:"value"`
	Confidence        float64          `json:"confidence"`
	SourceReliability float64          `json:"source_reliability"`
	Reasoning         string           `json:"reasoning"`
}

// Processor feeds extraction results to the engine with a worker pool.
// The engine serializes same-field facts itself, so workers can run freely.
type Processor struct {
	engine  *engine.Engine
	workers int
}

// NewProcessor creates a processor with the given parallelism.
func NewProcessor(eng *engine.Engine, workers int) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{engine: eng, workers: workers}
}

// ProcessFile runs every fact in a JSONL file through the engine.
func (p *Processor) ProcessFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening facts file: %w", err)
	}
	defer f.Close()
	return p.Process(f)
}

// Process reads one JSON fact per line and resolves each. Malformed lines and
// failed resolutions are counted and logged, never fatal; the rest of the
// batch still runs.
func (p *Processor) Process(r io.Reader) (*Result, error) {
	lines := make(chan string, p.workers)

	result := &Result{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := range lines {
				outcome := p.resolveLine(line)
				mu.Lock()
				result.Processed++
				switch outcome {
				case "filled":
					result.Filled++
				case "reconciled":
					result.Reconciled++
				case "enrolled":
					result.Enrolled++
				case "flagged":
					result.Flagged++
				case "unchanged":
					result.Unchanged++
				default:
					result.Errors++
				}
				mu.Unlock()
			}
		}()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines <- line
	}
	close(lines)
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("reading facts: %w", err)
	}

	log.Printf("Batch complete: %d processed (%d filled, %d reconciled, %d enrolled, %d flagged, %d unchanged), %d errors",
		result.Processed, result.Filled, result.Reconciled, result.Enrolled, result.Flagged, result.Unchanged, result.Errors)
	return result, nil
}

// resolveLine parses and resolves one fact, returning the decision outcome
// or "error".
func (p *Processor) resolveLine(line string) string {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		log.Printf("Skipping malformed fact line: %v", err)
		return "error"
	}

	fact, err := intake.New(rec.ArticleID, rec.Entity, rec.Field, rec.Value,
		rec.Confidence, rec.SourceReliability, rec.Reasoning)
	if err != nil {
		log.Printf("Rejected fact for field %q: %v", rec.Field, err)
		return "error"
	}

	decision, err := p.engine.Resolve(fact)
	if err != nil {
		log.Printf("Error resolving fact for field %q: %v", fact.FieldName, err)
		return "error"
	}

	log.Printf("Resolved [%s]: %s", decision.Outcome(), fact.FieldName)
	return decision.Outcome()
}

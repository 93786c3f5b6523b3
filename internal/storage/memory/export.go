package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roadops/operator-console/pkg/core"
)

// ExportVersion is written into every export.
const ExportVersion = 1

// Counts summarises an export.
type Counts struct {
	HeroStates    int `json:"heroStates"`
	PathProposals int `json:"pathProposals"`
	TrafficFrames int `json:"trafficFrames"`
}

// SessionExport is the root JSON structure
type SessionExport struct {
	Version       int                     `json:"version"`
	Session       core.Session            `json:"session"`
	EndTime       time.Time               `json:"endTime"`
	Counts        Counts                  `json:"counts"`
	HeroStates    []core.HeroVehicleState `json:"heroStates"`
	PathProposals []core.PathProposal     `json:"pathProposals"`
	TrafficFrames []core.TrafficFrame     `json:"trafficFrames"`
}

// FinalProposal returns the last recorded revision of the last proposal.
func (e SessionExport) FinalProposal() (core.PathProposal, bool) {
	if len(e.PathProposals) == 0 {
		return core.PathProposal{}, false
	}
	return e.PathProposals[len(e.PathProposals)-1], true
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	name := strings.ReplaceAll(b.session.Scenario, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Version:       ExportVersion,
		Session:       *b.session,
		EndTime:       b.endTime,
		HeroStates:    make([]core.HeroVehicleState, 0, len(b.heroStates)),
		PathProposals: make([]core.PathProposal, 0, len(b.proposals)),
		TrafficFrames: make([]core.TrafficFrame, 0, len(b.trafficFrames)),
	}
	export.HeroStates = append(export.HeroStates, b.heroStates...)
	export.PathProposals = append(export.PathProposals, b.proposals...)
	export.TrafficFrames = append(export.TrafficFrames, b.trafficFrames...)
	export.Counts = Counts{
		HeroStates:    len(export.HeroStates),
		PathProposals: len(export.PathProposals),
		TrafficFrames: len(export.TrafficFrames),
	}
	return export
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// ReadExport loads an export written by the memory backend. Files ending in
// .gz are decompressed.
func ReadExport(path string) (SessionExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return SessionExport{}, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return SessionExport{}, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export SessionExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return SessionExport{}, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}

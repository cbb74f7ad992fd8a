package actor

import (
	"context"
	"log"

	"github.com/pnguyenfetchai/study-assistant/internal/bus"
	"github.com/pnguyenfetchai/study-assistant/internal/chart"
	"github.com/pnguyenfetchai/study-assistant/internal/collab"
	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

// Visualization extracts a (labels, values) series from free text and
// renders it as a base64 PNG pie chart. Every internal failure degrades to
// an empty tool result; the caller falls back to text.
type Visualization struct {
	bus    bus.Bus
	collab *collab.Collaborators
}

// NewVisualization wires the visualization agent.
func NewVisualization(b bus.Bus, c *collab.Collaborators) *Visualization {
	return &Visualization{bus: b, collab: c}
}

// Address implements bus.Handler.
func (v *Visualization) Address() string { return AddrVisualization }

// HandleFrame implements bus.Handler.
func (v *Visualization) HandleFrame(ctx context.Context, frame domain.Frame) {
	msg, ok := decode(frame)
	if !ok {
		return
	}
	m, ok2 := msg.(domain.ToolRequest)
	if !ok2 {
		log.Printf("WARN: visualization ignoring %s frame from %s", frame.Kind, frame.From)
		return
	}

	bus.MustSend(ctx, v.bus, AddrVisualization, frame.From, domain.ToolResponse{
		Result: v.render(ctx, m.Params),
	})
}

func (v *Visualization) render(ctx context.Context, params map[string]interface{}) string {
	data, _ := params["data"].(string)
	title, _ := params["title"].(string)
	if data == "" {
		return ""
	}

	labels, values := v.collab.ExtractSeries(ctx, data)
	if len(values) == 0 {
		log.Printf("WARN: no data series extracted, skipping chart")
		return ""
	}

	encoded, err := chart.PiePNG(title, labels, values)
	if err != nil {
		log.Printf("ERROR: chart rendering failed: %v", err)
		return ""
	}
	return encoded
}

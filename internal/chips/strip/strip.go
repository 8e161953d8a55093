// Package strip registers the "strip" chipset: small string-transform
// chips. Their responses carry only a "result" field, with no status field.
package strip

import (
	"context"
	"strings"

	"github.com/SouthPatron/reasonchip/pkg/chip"
)

func init() {
	chip.RegisterChipset("strip", register)
}

func register(r *chip.Registry) error {
	req := chip.Schema{"s": chip.String()}
	resp := chip.Schema{"result": chip.String()}
	if err := r.Register("strip.upper", upper, req, resp); err != nil {
		return err
	}
	if err := r.Register("strip.lower", lower, req, resp); err != nil {
		return err
	}
	if err := r.Register("strip.trim", trim, req, resp); err != nil {
		return err
	}
	return nil
}

// upper, lower, and trim can't fail once the request schema has already
// guaranteed a string, so their response carries only the transformed
// value under "result", no status field. A lone "result" field is
// unwrapped to its bare value by the Processor.
func upper(ctx context.Context, req map[string]any) (map[string]any, error) {
	s, _ := req["s"].(string)
	return map[string]any{"result": strings.ToUpper(s)}, nil
}

func lower(ctx context.Context, req map[string]any) (map[string]any, error) {
	s, _ := req["s"].(string)
	return map[string]any{"result": strings.ToLower(s)}, nil
}

func trim(ctx context.Context, req map[string]any) (map[string]any, error) {
	s, _ := req["s"].(string)
	return map[string]any{"result": strings.TrimSpace(s)}, nil
}

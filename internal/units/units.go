// Package units converts Kubernetes CPU and memory quantity strings into the
// canonical units used by the cost engine: millicores and mebibytes.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// MalformedQuantityError reports a quantity string whose numeric portion could
// not be parsed. Callers treat the quantity as zero rather than failing the
// surrounding scrape pass.
type MalformedQuantityError struct {
	Value string
}

func (e *MalformedQuantityError) Error() string {
	return fmt.Sprintf("malformed quantity %q", e.Value)
}

// NormalizeCPU converts a CPU quantity string to millicores.
// Supported forms: nanocores ("500000000n"), millicores ("250m"), and bare
// numbers interpreted as whole cores ("2" = 2000 millicores).
func NormalizeCPU(value string) (float64, error) {
	switch {
	case strings.HasSuffix(value, "n"):
		n, err := parseNumber(value, strings.TrimSuffix(value, "n"))
		if err != nil {
			return 0, err
		}
		return n / 1_000_000, nil
	case strings.HasSuffix(value, "m"):
		n, err := parseNumber(value, strings.TrimSuffix(value, "m"))
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		n, err := parseNumber(value, value)
		if err != nil {
			return 0, err
		}
		return n * 1000, nil
	}
}

// NormalizeMemory converts a memory quantity string to mebibytes.
// Supported forms: "Ki", "Mi", "Gi" (1024-based), and bare numbers
// interpreted as mebibytes.
func NormalizeMemory(value string) (float64, error) {
	switch {
	case strings.HasSuffix(value, "Ki"):
		n, err := parseNumber(value, strings.TrimSuffix(value, "Ki"))
		if err != nil {
			return 0, err
		}
		return n / 1024, nil
	case strings.HasSuffix(value, "Mi"):
		n, err := parseNumber(value, strings.TrimSuffix(value, "Mi"))
		if err != nil {
			return 0, err
		}
		return n, nil
	case strings.HasSuffix(value, "Gi"):
		n, err := parseNumber(value, strings.TrimSuffix(value, "Gi"))
		if err != nil {
			return 0, err
		}
		return n * 1024, nil
	default:
		n, err := parseNumber(value, value)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func parseNumber(original, numeric string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, &MalformedQuantityError{Value: original}
	}
	return n, nil
}

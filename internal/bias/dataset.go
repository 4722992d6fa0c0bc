package bias

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// pairID accepts ids as either JSON strings or numbers; CrowS-Pairs exports
// use numeric ids, hand-written datasets tend to use strings.
type pairID string

func (p *pairID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = pairID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = pairID(n.String())
	return nil
}

// rawPair accepts both the CrowS-Pairs field names and the engine's own.
type rawPair struct {
	ID             pairID `json:"id"`
	Stereotype     string `json:"stereotype"`
	SentMore       string `json:"sent_more"`
	AntiStereotype string `json:"anti_stereotype"`
	SentLess       string `json:"sent_less"`
	BiasType       string `json:"bias_type"`
	Attribute      string `json:"attribute"`
}

// ParseDataset decodes and validates a JSON pair list. Validation is strict
// and runs to completion before any inference happens: one malformed entry
// rejects the whole dataset with ErrInvalidDataset.
func ParseDataset(data []byte) ([]StereotypePair, error) {
	var raw []rawPair
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: dataset is empty", ErrInvalidDataset)
	}

	pairs := make([]StereotypePair, 0, len(raw))
	for i, r := range raw {
		stereo := firstNonEmpty(r.Stereotype, r.SentMore)
		anti := firstNonEmpty(r.AntiStereotype, r.SentLess)
		id := strings.TrimSpace(string(r.ID))

		switch {
		case id == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidDataset, i)
		case strings.TrimSpace(stereo) == "":
			return nil, fmt.Errorf("%w: entry %d (id %s) has no stereotype sentence", ErrInvalidDataset, i, id)
		case strings.TrimSpace(anti) == "":
			return nil, fmt.Errorf("%w: entry %d (id %s) has no anti-stereotype sentence", ErrInvalidDataset, i, id)
		}

		pairs = append(pairs, StereotypePair{
			ID:             id,
			Stereotype:     stereo,
			AntiStereotype: anti,
			BiasType:       r.BiasType,
			Attribute:      r.Attribute,
		})
	}
	return pairs, nil
}

// LoadDataset reads and parses a pair dataset from disk.
func LoadDataset(path string) ([]StereotypePair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return ParseDataset(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package cache

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/leasecheck/internal/domain"
)

func resultKey(fingerprint string) string {
	return "result:" + fingerprint
}

func encodeResult(r *domain.FairnessResult) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("result is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*domain.FairnessResult, error) {
	var r domain.FairnessResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	if r.RedFlagClauses == nil {
		r.RedFlagClauses = []domain.RedFlag{}
	}
	return &r, nil
}

package usecase

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"

	"ai-studio-backend/internal/domain/ports/adapter"
)

// microPerArgToken is the flat micro-credit surcharge per prompt token the
// action's arguments contribute to the downstream model call.
const microPerArgToken = 50

// CostEstimator produces the micro-credit estimate shown on the approval card
// for a confirmation-gated tool call. Token counting uses cl100k_base, which
// covers every model the catalogue currently binds.
type CostEstimator struct {
	enc *tiktoken.Tiktoken
}

func NewCostEstimator() (*CostEstimator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &CostEstimator{enc: enc}, nil
}

// EstimateMicro = per-call baseline + tokens(arguments) * per-token rate.
func (c *CostEstimator) EstimateMicro(decl adapter.ToolDeclaration, args json.RawMessage) int64 {
	cost := decl.CostMicroPerCall
	if c != nil && c.enc != nil && len(args) > 0 {
		tokens := c.enc.Encode(string(args), nil, nil)
		cost += int64(len(tokens)) * microPerArgToken
	}
	return cost
}

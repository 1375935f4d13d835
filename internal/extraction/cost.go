package extraction

import "github.com/shopspring/decimal"

var perMillion = decimal.NewFromInt(1_000_000)

// Usage is what a provider consumed during one attempt, retries included.
type Usage struct {
	Calls        int   `json:"calls"`
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		Calls:        u.Calls + o.Calls,
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Price converts usage into money.
type Price struct {
	Input   decimal.Decimal // USD per million input tokens
	Output  decimal.Decimal // USD per million output tokens
	PerCall decimal.Decimal
}

// Cost of u, rounded to six places.
func (p Price) Cost(u Usage) decimal.Decimal {
	c := p.PerCall.Mul(decimal.NewFromInt(int64(u.Calls)))
	c = c.Add(p.Input.Mul(decimal.NewFromInt(u.InputTokens)).Div(perMillion))
	c = c.Add(p.Output.Mul(decimal.NewFromInt(u.OutputTokens)).Div(perMillion))
	return c.Round(6)
}

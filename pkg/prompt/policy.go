package prompt

// Policy holds the tunable literals of the response heuristics.
// The defaults mirror the conventions of the target application (code 10001 = ok,
// 10002 = failure) and are expected to be overridden per deployment.
type Policy struct {
	SuccessMarkers  []string `mapstructure:"success_markers" yaml:"success_markers"`
	ErrorMarkers    []string `mapstructure:"error_markers" yaml:"error_markers"`
	DataMarkers     []string `mapstructure:"data_markers" yaml:"data_markers"`
	SummaryFields   int      `mapstructure:"summary_fields" yaml:"summary_fields"`
	SummaryValueLen int      `mapstructure:"summary_value_len" yaml:"summary_value_len"`
	RawExcerptLen   int      `mapstructure:"raw_excerpt_len" yaml:"raw_excerpt_len"`
}

// DefaultPolicy returns the built-in marker lists.
func DefaultPolicy() Policy {
	return Policy{
		SuccessMarkers:  []string{"成功", "success", `"code":10001`, "完成"},
		ErrorMarkers:    []string{"错误", "失败", "error", `"code":10002`, "异常"},
		DataMarkers:     []string{"data", "postId", "userId", "id", "list", "items"},
		SummaryFields:   10,
		SummaryValueLen: 50,
		RawExcerptLen:   800,
	}
}

// withDefaults fills zero values from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.SuccessMarkers == nil {
		p.SuccessMarkers = d.SuccessMarkers
	}
	if p.ErrorMarkers == nil {
		p.ErrorMarkers = d.ErrorMarkers
	}
	if p.DataMarkers == nil {
		p.DataMarkers = d.DataMarkers
	}
	if p.SummaryFields <= 0 {
		p.SummaryFields = d.SummaryFields
	}
	if p.SummaryValueLen <= 0 {
		p.SummaryValueLen = d.SummaryValueLen
	}
	if p.RawExcerptLen <= 0 {
		p.RawExcerptLen = d.RawExcerptLen
	}
	return p
}

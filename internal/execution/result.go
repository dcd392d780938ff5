package execution

import (
	"fmt"
	"strings"

	"github.com/dontdude/coderoom/internal/domain"
)

// Result is a normalized execution service response, ready for display.
type Result struct {
	StandardOutput   string
	StandardError    *string
	CompileOutput    *string
	CompileError     *string
	ExitCode         int
	Signal           string
	RuntimeMillis    float64
	CompileMillis    *float64
	ReportedLanguage string
	ReportedVersion  string
}

// Succeeded reports whether the program exited cleanly.
func (r *Result) Succeeded() bool { return r.ExitCode == 0 }

// ExecutionError joins compile and run stderr; nil when both are empty.
func (r *Result) ExecutionError() *string {
	var parts []string
	if r.CompileError != nil && *r.CompileError != "" {
		parts = append(parts, *r.CompileError)
	}
	if r.StandardError != nil && *r.StandardError != "" {
		parts = append(parts, *r.StandardError)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "\n")
	return &joined
}

// Display renders the result as shown in the output panel. Compile output and
// compile errors come first, then the run's stats, output and error text.
func (r *Result) Display() string {
	var b strings.Builder
	compileOut := ""
	if r.CompileOutput != nil {
		compileOut = *r.CompileOutput
	}
	if compileOut != "" {
		fmt.Fprintf(&b, "Compile Output: %s\n", compileOut)
	}
	// The service folds compiler stderr into the compile output as well.
	if r.CompileError != nil && *r.CompileError != "" && !strings.Contains(compileOut, *r.CompileError) {
		fmt.Fprintf(&b, "Compile Error: %s\n", *r.CompileError)
	}
	fmt.Fprintf(&b, "Exit Code: %d\n", r.ExitCode)
	if r.Signal != "" {
		fmt.Fprintf(&b, "Signal: %s\n", r.Signal)
	}
	fmt.Fprintf(&b, "Runtime: %.0fms\n", r.RuntimeMillis)
	if r.CompileMillis != nil {
		fmt.Fprintf(&b, "Compile Time: %.0fms\n", *r.CompileMillis)
	}
	out := r.StandardOutput
	if out == "" {
		out = "No output"
	}
	fmt.Fprintf(&b, "Output: %s\n", out)
	if r.StandardError != nil && *r.StandardError != "" {
		fmt.Fprintf(&b, "Error: %s\n", *r.StandardError)
	}
	return b.String()
}

// Normalize maps a raw service response into a Result. A response with no run
// phase is a contract violation, except when compilation failed and the
// service therefore never ran the program.
func Normalize(resp *domain.ServiceResponse) (*Result, error) {
	if resp == nil {
		return nil, domain.ErrInvalidResponse
	}

	res := &Result{
		ReportedLanguage: resp.Language,
		ReportedVersion:  resp.Version,
	}

	if c := resp.Compile; c != nil {
		res.CompileOutput = nonEmpty(c.Output)
		if c.Stderr != nil {
			res.CompileError = nonEmpty(*c.Stderr)
		}
		res.CompileMillis = phaseMillis(c)
	}

	run := resp.Run
	if run == nil {
		c := resp.Compile
		if c == nil || exitCode(c) == 0 {
			return nil, domain.ErrInvalidResponse
		}
		if res.CompileError == nil {
			res.CompileError = nonEmpty(c.Output)
		}
		res.ExitCode = exitCode(c)
		res.Signal = signal(c)
		return res, nil
	}

	res.StandardOutput = run.Output
	if run.Stderr != nil {
		res.StandardError = nonEmpty(*run.Stderr)
	}
	res.ExitCode = exitCode(run)
	res.Signal = signal(run)
	if ms := phaseMillis(run); ms != nil {
		res.RuntimeMillis = *ms
	}
	return res, nil
}

// exitCode treats a missing code (the process was killed) as failure.
func exitCode(p *domain.ServicePhase) int {
	if p.Code == nil {
		return -1
	}
	return *p.Code
}

func signal(p *domain.ServicePhase) string {
	if p.Signal == nil {
		return ""
	}
	return *p.Signal
}

func phaseMillis(p *domain.ServicePhase) *float64 {
	if p.Time != nil {
		return p.Time
	}
	return p.WallTime
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

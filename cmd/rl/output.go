package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/revledger/revledger"
	"github.com/revledger/revledger/internal/rpc"
	"github.com/revledger/revledger/internal/ui"
)

// outputJSON writes v as pretty-printed JSON.
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

type errorOutput struct {
	Error   string             `json:"error"`
	Code    string             `json:"code,omitempty"`
	Reasons []revledger.Reason `json:"reasons,omitempty"`
}

// printError reports err on w, as JSON in --json mode. Validation failures
// list every reason.
func printError(w io.Writer, err error) {
	code := revledger.ErrorCode(err)
	reasons := revledger.ReasonsOf(err)
	var re *rpc.RemoteError
	if errors.As(err, &re) {
		code, reasons = re.Code, re.Reasons
	}

	if jsonOutput {
		_ = outputJSON(w, errorOutput{Error: err.Error(), Code: code, Reasons: reasons})
		return
	}
	if len(reasons) == 0 {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	var vf *revledger.ValidationFailed
	if errors.As(err, &vf) {
		fmt.Fprintf(w, "Error: %s failed validation\n", vf.Operation)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	for _, r := range reasons {
		fmt.Fprintf(w, "  %s %s %s\n", ui.RenderFailIcon(), ui.RenderFail(string(r.Code)), r.Message)
	}
}

func printReasons(w io.Writer, reasons []revledger.Reason) {
	for _, r := range reasons {
		fmt.Fprintf(w, "  %s %s %s\n", ui.RenderWarnIcon(), ui.RenderWarn(string(r.Code)), r.Message)
	}
}

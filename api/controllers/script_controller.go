package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/hanamichi-me/DW-traffic/service/scripting"
)

// ScriptController validates consequent scripts. A script is the body of
// func Match(item, attribute, value string) bool.
//
// Scripts run in-process under yaegi with the standard library symbols
// loaded, so the scripting endpoints belong behind the same trust boundary
// as the operators who submit runs. Each call is bounded by
// mining.script_timeout; a script that panics or times out fails its run.
type ScriptController struct {
	compiler *scripting.Compiler
}

// NewScriptController creates a controller over compiler.
func NewScriptController(compiler *scripting.Compiler) *ScriptController {
	return &ScriptController{compiler: compiler}
}

// ValidateScriptRequest carries a consequent script.
type ValidateScriptRequest struct {
	Script string `json:"script" example:"return attribute == \"road_user\" && value != \"Other\""`
}

// ValidateScriptResponse reports whether the script compiled.
type ValidateScriptResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateScript compiles a script without running anything
// @Summary Validate a consequent script
// @Tags mining
// @Accept json
// @Produce json
// @Param request body ValidateScriptRequest true "script"
// @Success 200 {object} APIResponse{data=ValidateScriptResponse}
// @Router /mining/scripts/validate [post]
func (c *ScriptController) ValidateScript(w http.ResponseWriter, r *http.Request) {
	var req ValidateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, r, BadRequestResponse("invalid request body", err))
		return
	}
	resp := ValidateScriptResponse{Valid: true}
	if err := c.compiler.Validate(req.Script); err != nil {
		resp = ValidateScriptResponse{Valid: false, Error: err.Error()}
	}
	respond(w, r, SuccessResponse("ok", resp))
}

package impls

import (
	"context"

	"github.com/aweller/gamewarden/internal/domain"
)

// CommandRunner executes shell commands on the instance through the
// remote-execution API. Run sends the commands and waits for the invocation
// to finish; RunUntilSuccess additionally retries the whole cycle until the
// commands themselves report success.
type CommandRunner interface {
	Run(ctx context.Context, commands []string) (domain.CommandInvocation, error)
	RunUntilSuccess(ctx context.Context, commands []string) (domain.CommandInvocation, error)
}

package buildertools

import (
	"context"
	"fmt"
	"time"

	"github.com/drover-ai/drover/pkg/tool"
	"github.com/drover-ai/drover/pkg/tool/functiontool"
)

// CurrentTimeArgs are the parameters of the current_time tool.
type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as America/New_York. Defaults to UTC."`
}

// CurrentTime builds the current_time utility tool. Models have no clock;
// this gives them one.
func CurrentTime() (tool.Descriptor, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "current_time",
			Description: "Get the current date and time, optionally in a specific timezone.",
			Tags:        []string{"utility"},
		},
		func(ctx context.Context, ac *tool.ActionContext, args CurrentTimeArgs) (map[string]any, error) {
			loc := time.UTC
			if args.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q: %w", args.Timezone, err)
				}
			}
			now := time.Now().In(loc)
			return map[string]any{
				"time":     now.Format(time.RFC3339),
				"unix":     now.Unix(),
				"timezone": loc.String(),
				"weekday":  now.Weekday().String(),
			}, nil
		},
	)
}

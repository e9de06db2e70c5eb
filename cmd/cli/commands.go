package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/anonmatch/internal/convert"
	"github.com/and161185/anonmatch/internal/model"
	grpcserver "github.com/and161185/anonmatch/internal/server/grpc"
)

// parseFilters reads search filter flags and validates them locally so typos fail
// before a round trip.
func parseFilters(cmd string, args []string) (*structpb.Struct, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	gender := fs.String("gender", "", "Male|Female|Other|Any")
	hobby := fs.String("hobby", "", "preferred hobby")
	ageMin := fs.Int("age-min", 0, "lower age bound")
	ageMax := fs.Int("age-max", 0, "upper age bound")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected %q", errUsage, fs.Arg(0))
	}

	f := model.Filters{Gender: model.Gender(*gender), Hobby: *hobby}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "age-min":
			f.AgeMin = ageMin
		case "age-max":
			f.AgeMax = ageMax
		}
	})
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return convert.FiltersToStruct(f), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: want on|off, got %q", errUsage, s)
}

// watch prints events until ctx ends or the server closes the stream.
func watch(ctx context.Context, cl *grpcserver.Client, out io.Writer) error {
	stream, err := cl.Events(ctx)
	if err != nil {
		return err
	}
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := printEvent(out, ev); err != nil {
			return err
		}
	}
}

func printEvent(w io.Writer, ev *structpb.Struct) error {
	f := ev.GetFields()
	line := f["at"].GetStringValue() + " " + f["kind"].GetStringValue()
	if p := f["partner"].GetStringValue(); p != "" {
		line += " partner=" + p
	}
	if r := f["reason"].GetStringValue(); r != "" {
		line += " reason=" + r
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"challengerunner/config"
	"challengerunner/executor"
	"challengerunner/internal"
	applog "challengerunner/logger"

	"github.com/fatih/color"
)

var (
	ok   = color.New(color.FgGreen, color.Bold).SprintFunc()
	bad  = color.New(color.FgRed, color.Bold).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

func usage() {
	fmt.Println("Usage: sandboxctl <command>")
	fmt.Println()
	fmt.Println("  verify <challenge-dir> <source-file>   run a submission against a challenge")
	fmt.Println("  sweep                                  remove orphaned containers and workspaces")
	fmt.Println("  ping                                   check the Docker daemon")
	fmt.Println("  image                                  check the sandbox image is present")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	dockerCfg, err := cfg.DockerConfig()
	if err != nil {
		fail("invalid configuration: %v", err)
	}
	// a one-shot run has no use for warm containers
	dockerCfg.PoolSize = 0

	log, _, err := applog.NewRunnerLogger("", "warn")
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner, err := executor.NewRunner(ctx, dockerCfg, executor.WithLogger(log), executor.WithWorkspaceRoot(cfg.WorkspaceRoot))
	if err != nil {
		fail("%v", err)
	}
	defer runner.Shutdown(context.Background())

	switch os.Args[1] {
	case "ping":
		fmt.Println(ok("docker is reachable"))
	case "image":
		if err := runner.CheckImage(ctx); err != nil {
			fail("%v", err)
		}
		fmt.Printf("%s %s\n", ok("found"), dockerCfg.Image)
	case "sweep":
		removed, err := runner.CleanupOrphanedContainers(ctx)
		if err != nil {
			fail("%v", err)
		}
		purged := runner.PurgeStaleWorkspaces()
		fmt.Printf("removed %d containers, %d workspaces\n", removed, purged)
	case "verify":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		verify(ctx, runner, cfg.MaxCodeLength, os.Args[2], os.Args[3])
	default:
		fmt.Println("Unknown command.")
		usage()
		os.Exit(1)
	}
}

func verify(ctx context.Context, runner *executor.Runner, maxLen int, challengeDir, sourceFile string) {
	source, err := os.ReadFile(sourceFile)
	if err != nil {
		fail("%v", err)
	}
	if err := internal.SanitizeCode(string(source), maxLen); err != nil {
		fail("%v", err)
	}

	fmt.Println(dim(fmt.Sprintf("running %s against %s (timeout %s)", sourceFile, challengeDir, runner.Config().Timeout)))
	result, err := runner.RunVerification(ctx, challengeDir, string(source))
	if err != nil {
		fail("%v", err)
	}
	printResult(result)
	if !result.Success {
		os.Exit(2)
	}
}

func printResult(r *executor.VerificationResult) {
	switch o := r.Outcome.(type) {
	case *executor.CompileError:
		fmt.Printf("%s %s\n", bad("COMPILE ERROR"), o)
	case *executor.RuntimeError:
		fmt.Printf("%s %s\n", bad("RUNTIME ERROR"), o)
		if o.Stderr != "" {
			fmt.Println(dim(strings.TrimSpace(o.Stderr)))
		}
	default:
		label := ok("PASSED")
		if !r.Success {
			label = bad("FAILED")
		}
		fmt.Printf("%s %d/%d tests passed\n", label, r.TestsPassed, r.TestsTotal)
	}

	if r.ResourceLimitHit != executor.LimitNone {
		fmt.Printf("%s %s limit reached\n", warn("!"), r.ResourceLimitHit)
	}
	fmt.Println(dim("took " + r.Duration.Round(time.Millisecond).String()))
}

func fail(format string, args ...any) {
	fmt.Fprintln(os.Stderr, bad("error:"), fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Command lox runs lox scripts: pass a path to execute a file, or run
// with no arguments to drop into a REPL.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/clarete/golox/internal/compiler"
	"github.com/clarete/golox/internal/config"
	"github.com/clarete/golox/internal/disasm"
	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxerr"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/clarete/golox/internal/scanner"
	"github.com/clarete/golox/internal/token"
	"github.com/clarete/golox/internal/vm"
	"github.com/peterh/liner"
)

const (
	exitOK          = 0
	exitCompileFail = 65
	exitRuntimeFail = 70
)

func main() {
	var (
		debugTokens   = flag.Bool("debug-tokens", false, "print every token the scanner produces")
		debugBytecode = flag.Bool("debug-bytecode", false, "disassemble compiled chunks before running them")
		gcStress      = flag.Bool("gc-stress", false, "collect garbage on every allocation")
		gcLog         = flag.Bool("gc-log", false, "log collector activity to stderr")
		verbose       = flag.Bool("v", false, "log suppressed compile errors and other debug output")
	)
	flag.Parse()

	cfg := config.New()
	cfg.SetBool("gc.stress", *gcStress)
	cfg.SetBool("gc.log", *gcLog)

	logger := loxlog.New(os.Stderr, *verbose)

	h := heap.New()
	h.SetStressGC(cfg.GetBool("gc.stress"))
	h.SetLogGC(cfg.GetBool("gc.log"), os.Stderr)
	h.SetGrowFactor(cfg.GetInt("gc.heap_grow_factor"))

	machine := vm.New(h, cfg, logger)
	driver := &driver{vm: machine, logger: logger, debugTokens: *debugTokens, debugBytecode: *debugBytecode}

	args := flag.Args()
	switch len(args) {
	case 0:
		driver.repl()
	case 1:
		os.Exit(driver.runFile(args[0]))
	default:
		fmt.Fprintln(os.Stderr, "Usage: lox [path]")
		os.Exit(64)
	}
}

type driver struct {
	vm     *vm.VM
	logger *loxlog.Logger

	debugTokens   bool
	debugBytecode bool
}

func (d *driver) runFile(path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Can't read file %q: %s", path, err)
		return exitCompileFail
	}
	return d.run(string(source))
}

func (d *driver) run(source string) int {
	if d.debugTokens {
		dumpTokens(source)
	}
	if d.debugBytecode {
		fn, err := compiler.Compile(source, d.vm.Heap(), d.logger)
		if err != nil {
			printErr(err)
			return exitCompileFail
		}
		disasm.Disassemble(os.Stderr, fn.Chunk, "script")
	}

	if err := d.vm.Interpret(source); err != nil {
		printErr(err)
		switch err.(type) {
		case *loxerr.CompileError:
			return exitCompileFail
		case *loxerr.RuntimeError:
			return exitRuntimeFail
		default:
			return exitRuntimeFail
		}
	}
	return exitOK
}

func (d *driver) repl() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		text, err := line.Prompt("> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Println()
			return
		}
		if err != nil {
			log.Printf("reading line: %s", err)
			return
		}
		if text == "" {
			continue
		}
		line.AppendHistory(text)
		d.run(text)
	}
}

func printErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
}

func dumpTokens(source string) {
	s := scanner.New(source)
	for {
		tok := s.Next()
		fmt.Fprintf(os.Stderr, "%4d %-14s '%s'\n", tok.Line, tok.Kind, tok.Lexeme)
		if tok.Kind == token.EOF {
			return
		}
	}
}

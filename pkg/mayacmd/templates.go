package mayacmd

import (
	"fmt"
	"path/filepath"
	"strings"
)

// The command port is opened with sourceType="mel", so every submission is a
// MEL command. Python snippets are written to a scratch file and executed
// through MEL's python() wrapper; the path's backslashes must survive both
// the MEL string layer and the embedded Python string layer.
const execCommand = "python(\"exec(open('%s').read())\");\n"

// attachTemplate bootstraps debugpy inside Maya so it listens for the relay's
// DAP connection. Safe to run twice: a second listen() on the same address
// raises RuntimeError, which is swallowed.
const attachTemplate = `def __mayadap_start_engine():
    try:
        import debugpy
    except ImportError:
        import maya.cmds as cmds
        cmds.warning('mayadap: debugpy is not importable in Maya; install it with mayapy -m pip install debugpy')
        return
    try:
        debugpy.listen(('%s', %d))
    except RuntimeError:
        pass

__mayadap_start_engine()
`

// runTemplate imports (or re-imports) the user's program inside Maya once the
// debug session is configured, so breakpoints set beforehand are hit.
const runTemplate = `import sys

if '%[1]s' not in sys.path:
    sys.path.insert(0, '%[1]s')

import importlib
import %[2]s
importlib.reload(%[2]s)
`

// FormatAttachCode renders the debugpy bootstrap for the given bind address.
func FormatAttachCode(host string, port int) string {
	return fmt.Sprintf(attachTemplate, escapeForPython(host), port)
}

// FormatRunCode renders the run directive for the given program path: add the
// program's directory to sys.path and import its module.
func FormatRunCode(program string) string {
	program = filepath.FromSlash(program)
	return fmt.Sprintf(runTemplate, escapeForPython(filepath.Dir(program)), ModuleName(program))
}

// ModuleName derives the importable module name from a program path:
// the file name without its .py extension, falling back to the containing
// directory's name when the path ends in a separator.
func ModuleName(program string) string {
	name := strings.TrimSuffix(filepath.Base(program), ".py")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = strings.TrimSuffix(filepath.Base(filepath.Dir(program)), ".py")
	}
	return name
}

// escapeForPython escapes backslashes for a single-quoted Python string
// literal (Windows paths).
func escapeForPython(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}

// escapeForMEL escapes backslashes for a path embedded in a Python string
// inside a MEL string: each backslash must survive two unescaping layers.
func escapeForMEL(s string) string {
	return strings.ReplaceAll(s, `\`, `\\\\`)
}

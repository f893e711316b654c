// Copyright (c) Rex contributors
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package docs

// Global content for help text.
const (
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// main rex command
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	RexUse   string = `rex [generator options...]`
	RexShort string = `Bundle a dynamically linked Linux executable into a single self-extracting file`
	RexLong  string = `
  Rex reads a dynamically linked ELF binary, resolves its shared-library
  closure, and produces one standalone executable that carries the target,
  its libraries, and its dynamic loader inside itself. Running the produced
  bundle transparently extracts its contents to a temporary directory and
  launches the original target with its own, self-contained library search
  path — the host's installed libraries are never consulted.`
	RexExample string = `
  $ rex -t ./hello
  $ rex -t ./hello -L 19 -l /opt/lib/libextra.so -b ./helpers -a ./README.md
  $ ./hello.Rex some args passed straight through to hello
  $ ./hello.Rex --rex-extract`

	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	// bundled runtime mode
	// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
	RexRuntimeHelp string = `
  This executable is a Rex bundle. Recognized flags:

    --rex-help      print this text and exit
    --rex-extract   extract the embedded payload into the current
                     directory and exit

  Any other arguments (including none) are forwarded unchanged to the
  embedded target.`
)

// SPDX-License-Identifier: MPL-2.0

package constants

import (
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/nccbuild/ncc/pkg/project"
)

// Placeholder names, without delimiters.
const (
	AssemblyName        = "ASSEMBLY.NAME"
	AssemblyPackage     = "ASSEMBLY.PACKAGE"
	AssemblyDescription = "ASSEMBLY.DESCRIPTION"
	AssemblyCompany     = "ASSEMBLY.COMPANY"
	AssemblyProduct     = "ASSEMBLY.PRODUCT"
	AssemblyCopyright   = "ASSEMBLY.COPYRIGHT"
	AssemblyTrademark   = "ASSEMBLY.TRADEMARK"
	AssemblyVersion     = "ASSEMBLY.VERSION"
	AssemblyUID         = "ASSEMBLY.UID"

	CompileTimestamp = "COMPILE_TIMESTAMP"
	BuildVersion     = "NCC_BUILD_VERSION"
	BuildFlags       = "NCC_BUILD_FLAGS"
	BuildBranch      = "NCC_BUILD_BRANCH"

	InstallPath     = "INSTALL_PATH"
	InstallPathBin  = "INSTALL_PATH.BIN"
	InstallPathSrc  = "INSTALL_PATH.SRC"
	InstallPathData = "INSTALL_PATH.DATA"

	RuntimeCWD         = "CWD"
	RuntimePID         = "PID"
	RuntimeUID         = "UID"
	RuntimeGID         = "GID"
	RuntimeUser        = "USER"
	RuntimeProjectPath = "PROJECT_PATH"
)

// DateTimeTokens lists the date and time placeholders in the order they are
// documented. Each is a single format letter.
var DateTimeTokens = []string{
	"d", "D", "j", "l", "N", "S", "w", "z",
	"W",
	"F", "m", "M", "n", "t",
	"L", "o", "Y", "y",
	"a", "A", "B", "g", "G", "h", "H", "i", "s",
	"c", "r", "u",
}

type (
	// Build describes the toolchain producing a package.
	Build struct {
		Timestamp time.Time
		Version   string
		Flags     []string
		Branch    string
	}

	// InstallPaths are the directories a package is installed into.
	InstallPaths struct {
		Root string
		Bin  string
		Src  string
		Data string
	}

	// Runtime holds facts about the running process.
	Runtime struct {
		CWD         string
		PID         int
		UID         int
		GID         int
		User        string
		ProjectPath string
	}

	// Groups selects which placeholder groups are substituted. A nil group is
	// skipped and its placeholders are left untouched.
	Groups struct {
		Assembly *project.Assembly
		Build    *Build
		Install  *InstallPaths
		DateTime *time.Time
		Runtime  *Runtime
	}
)

// NewInstallPaths derives the standard layout below root.
func NewInstallPaths(root string) *InstallPaths {
	root = strings.TrimRight(root, "/")
	return &InstallPaths{
		Root: root,
		Bin:  root + "/bin",
		Src:  root + "/src",
		Data: root + "/data",
	}
}

// CurrentRuntime captures the running process. A lookup that fails leaves its
// field empty.
func CurrentRuntime(projectPath string) *Runtime {
	r := &Runtime{
		PID:         os.Getpid(),
		UID:         os.Getuid(),
		GID:         os.Getgid(),
		ProjectPath: projectPath,
	}
	if wd, err := os.Getwd(); err == nil {
		r.CWD = wd
	}
	if u, err := user.Current(); err == nil {
		r.User = u.Username
	}
	return r
}

// values flattens the supplied groups into placeholder name -> replacement.
func (g Groups) values() map[string]string {
	out := make(map[string]string, 64)
	if a := g.Assembly; a != nil {
		out[AssemblyName] = a.Name
		out[AssemblyPackage] = a.Package.String()
		out[AssemblyDescription] = a.Description
		out[AssemblyCompany] = a.Company
		out[AssemblyProduct] = a.Product
		out[AssemblyCopyright] = a.Copyright
		out[AssemblyTrademark] = a.Trademark
		out[AssemblyVersion] = a.Version
		out[AssemblyUID] = a.UUID
	}
	if b := g.Build; b != nil {
		out[CompileTimestamp] = strconv.FormatInt(b.Timestamp.Unix(), 10)
		out[BuildVersion] = b.Version
		out[BuildFlags] = strings.Join(b.Flags, " ")
		out[BuildBranch] = b.Branch
	}
	if p := g.Install; p != nil {
		out[InstallPath] = p.Root
		out[InstallPathBin] = p.Bin
		out[InstallPathSrc] = p.Src
		out[InstallPathData] = p.Data
	}
	if t := g.DateTime; t != nil {
		for _, tok := range DateTimeTokens {
			out[tok] = formatDate(tok[0], *t)
		}
	}
	if r := g.Runtime; r != nil {
		out[RuntimeCWD] = r.CWD
		out[RuntimePID] = strconv.Itoa(r.PID)
		out[RuntimeUID] = strconv.Itoa(r.UID)
		out[RuntimeGID] = strconv.Itoa(r.GID)
		out[RuntimeUser] = r.User
		out[RuntimeProjectPath] = r.ProjectPath
	}
	return out
}

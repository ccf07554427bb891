// Package fs provides file system ops. Every path is checked against the
// read or write permission before the file system is touched.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wippyai/opcore/errors"
	"github.com/wippyai/opcore/hostops"
	"github.com/wippyai/opcore/ops"
	"github.com/wippyai/opcore/opstate"
	"github.com/wippyai/opcore/resource"
)

// maxRead caps a single fsRead.
const maxRead = 16 << 20

// File is an open file in the resource table.
type File struct {
	f    *os.File
	path string
}

func (f *File) Name() string { return "fsFile" }

func (f *File) Close() error { return f.f.Close() }

// Path returns the absolute path the file was opened with.
func (f *File) Path() string { return f.path }

// Extension provides the fs ops.
type Extension struct{}

// New creates the extension.
func New() *Extension { return &Extension{} }

func (*Extension) Name() string { return "fs" }

func (*Extension) Ops() []ops.Decl {
	return []ops.Decl{
		ops.Sync("fsOpen", open),
		ops.Async("fsRead", read),
		ops.NewAsync("fsWrite", write),
		ops.Async("fsReadFile", readFile),
		ops.NewSync("fsWriteFile", writeFile),
		ops.Sync("fsStat", stat),
		ops.Sync("fsRemove", remove),
		ops.Sync("fsMkdir", mkdir),
		ops.Sync("cwd", cwd),
	}
}

func abs(path string) (string, error) {
	if path == "" {
		return "", errors.TypeMismatch(errors.PhaseDecode, []string{"path"}, "path is required")
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return "", hostops.OSError("resolve path", err)
	}
	return p, nil
}

// OpenArgs selects the open mode. With no mode flag set the file is
// opened read-only.
type OpenArgs struct {
	Path     string `json:"path" cbor:"path"`
	Read     bool   `json:"read,omitempty" cbor:"read,omitempty"`
	Write    bool   `json:"write,omitempty" cbor:"write,omitempty"`
	Create   bool   `json:"create,omitempty" cbor:"create,omitempty"`
	Truncate bool   `json:"truncate,omitempty" cbor:"truncate,omitempty"`
	Append   bool   `json:"append,omitempty" cbor:"append,omitempty"`
}

func (a OpenArgs) flags() (flag int, reads, writes bool) {
	writes = a.Write || a.Create || a.Truncate || a.Append
	reads = a.Read || !writes
	switch {
	case reads && writes:
		flag = os.O_RDWR
	case writes:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}
	if a.Create {
		flag |= os.O_CREATE
	}
	if a.Truncate {
		flag |= os.O_TRUNC
	}
	if a.Append {
		flag |= os.O_APPEND
	}
	return flag, reads, writes
}

func open(st *opstate.State, in OpenArgs) (hostops.RIDResult, error) {
	path, err := abs(in.Path)
	if err != nil {
		return hostops.RIDResult{}, err
	}
	flag, reads, writes := in.flags()

	perms := st.Permissions()
	if reads {
		if err := perms.CheckRead(path, "fsOpen"); err != nil {
			return hostops.RIDResult{}, err
		}
	}
	if writes {
		if err := perms.CheckWrite(path, "fsOpen"); err != nil {
			return hostops.RIDResult{}, err
		}
	}

	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return hostops.RIDResult{}, hostops.OSError("fsOpen", err)
	}
	rid, err := hostops.Add(st, &File{f: f, path: path})
	if err != nil {
		f.Close()
		return hostops.RIDResult{}, err
	}
	return hostops.RIDResult{RID: rid}, nil
}

// ReadArgs reads up to Len bytes from an open file.
type ReadArgs struct {
	RID resource.ID `json:"rid" cbor:"rid"`
	Len int         `json:"len" cbor:"len"`
}

// ReadResult carries the bytes read. EOF is set once the file is exhausted.
type ReadResult struct {
	Data []byte `json:"data" cbor:"data"`
	EOF  bool   `json:"eof" cbor:"eof"`
}

func read(st *opstate.State, in ReadArgs) (ops.TypedFuture[ReadResult], error) {
	if in.Len <= 0 || in.Len > maxRead {
		return nil, errors.TypeMismatch(errors.PhaseDecode, []string{"len"}, "len must be between 1 and 16MiB")
	}
	lease, err := hostops.Lease[*File](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(context.Context, *opstate.Cell) (ReadResult, error) {
		defer lease.Release()

		buf := make([]byte, in.Len)
		n, err := lease.Value.f.Read(buf)
		if err == io.EOF {
			return ReadResult{Data: buf[:n], EOF: true}, nil
		}
		if err != nil {
			return ReadResult{}, hostops.OSError("fsRead", err)
		}
		return ReadResult{Data: buf[:n]}, nil
	}, nil
}

// WriteResult reports bytes written.
type WriteResult struct {
	N int `json:"n" cbor:"n"`
}

func write(st *opstate.State, args *ops.Args) (ops.Future, error) {
	var in hostops.RID
	if err := args.Decode(&in); err != nil {
		return nil, err
	}
	data, err := args.CopyBuffer(0)
	if err != nil {
		return nil, err
	}
	lease, err := hostops.Lease[*File](st, in.RID)
	if err != nil {
		return nil, err
	}
	return func(context.Context, *opstate.Cell) (any, error) {
		defer lease.Release()

		n, err := lease.Value.f.Write(data)
		if err != nil {
			return nil, hostops.OSError("fsWrite", err)
		}
		return WriteResult{N: n}, nil
	}, nil
}

// PathArgs names a path.
type PathArgs struct {
	Path string `json:"path" cbor:"path"`
}

func readFile(st *opstate.State, in PathArgs) (ops.TypedFuture[ReadResult], error) {
	path, err := abs(in.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Permissions().CheckRead(path, "fsReadFile"); err != nil {
		return nil, err
	}
	return func(context.Context, *opstate.Cell) (ReadResult, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return ReadResult{}, hostops.OSError("fsReadFile", err)
		}
		return ReadResult{Data: data, EOF: true}, nil
	}, nil
}

// WriteFileArgs controls fsWriteFile. The content is buffer 0.
type WriteFileArgs struct {
	Path   string `json:"path" cbor:"path"`
	Append bool   `json:"append,omitempty" cbor:"append,omitempty"`
}

func writeFile(st *opstate.State, args *ops.Args) (any, error) {
	var in WriteFileArgs
	if err := args.Decode(&in); err != nil {
		return nil, err
	}
	data, err := args.Buffer(0)
	if err != nil {
		return nil, err
	}
	path, err := abs(in.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Permissions().CheckWrite(path, "fsWriteFile"); err != nil {
		return nil, err
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if in.Append {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return nil, hostops.OSError("fsWriteFile", err)
	}
	n, err := f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, hostops.OSError("fsWriteFile", err)
	}
	return WriteResult{N: n}, nil
}

// StatResult describes a file.
type StatResult struct {
	Size      int64  `json:"size" cbor:"size"`
	Mtime     int64  `json:"mtime" cbor:"mtime"`
	Mode      uint32 `json:"mode" cbor:"mode"`
	IsFile    bool   `json:"isFile" cbor:"isFile"`
	IsDir     bool   `json:"isDirectory" cbor:"isDirectory"`
	IsSymlink bool   `json:"isSymlink" cbor:"isSymlink"`
}

func stat(st *opstate.State, in PathArgs) (StatResult, error) {
	path, err := abs(in.Path)
	if err != nil {
		return StatResult{}, err
	}
	if err := st.Permissions().CheckRead(path, "fsStat"); err != nil {
		return StatResult{}, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return StatResult{}, hostops.OSError("fsStat", err)
	}
	return StatResult{
		Size:      info.Size(),
		Mtime:     info.ModTime().UnixNano() / int64(time.Millisecond),
		Mode:      uint32(info.Mode().Perm()),
		IsFile:    info.Mode().IsRegular(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}, nil
}

// RemoveArgs controls fsRemove.
type RemoveArgs struct {
	Path      string `json:"path" cbor:"path"`
	Recursive bool   `json:"recursive,omitempty" cbor:"recursive,omitempty"`
}

func remove(st *opstate.State, in RemoveArgs) (ops.Empty, error) {
	path, err := abs(in.Path)
	if err != nil {
		return ops.Empty{}, err
	}
	if err := st.Permissions().CheckWrite(path, "fsRemove"); err != nil {
		return ops.Empty{}, err
	}
	if in.Recursive {
		if _, err := os.Lstat(path); err != nil {
			return ops.Empty{}, hostops.OSError("fsRemove", err)
		}
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	return ops.Empty{}, hostops.OSError("fsRemove", err)
}

// MkdirArgs controls fsMkdir.
type MkdirArgs struct {
	Path      string `json:"path" cbor:"path"`
	Recursive bool   `json:"recursive,omitempty" cbor:"recursive,omitempty"`
	Mode      uint32 `json:"mode,omitempty" cbor:"mode,omitempty"`
}

func mkdir(st *opstate.State, in MkdirArgs) (ops.Empty, error) {
	path, err := abs(in.Path)
	if err != nil {
		return ops.Empty{}, err
	}
	if err := st.Permissions().CheckWrite(path, "fsMkdir"); err != nil {
		return ops.Empty{}, err
	}
	mode := os.FileMode(0o777)
	if in.Mode != 0 {
		mode = os.FileMode(in.Mode) & os.ModePerm
	}
	if in.Recursive {
		err = os.MkdirAll(path, mode)
	} else {
		err = os.Mkdir(path, mode)
	}
	return ops.Empty{}, hostops.OSError("fsMkdir", err)
}

// CwdResult is the current working directory.
type CwdResult struct {
	Path string `json:"path" cbor:"path"`
}

func cwd(st *opstate.State, _ ops.Empty) (CwdResult, error) {
	dir, err := os.Getwd()
	if err != nil {
		return CwdResult{}, hostops.OSError("cwd", err)
	}
	if err := st.Permissions().CheckRead(dir, "cwd"); err != nil {
		return CwdResult{}, err
	}
	return CwdResult{Path: dir}, nil
}

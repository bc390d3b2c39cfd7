package fs

import (
	"errors"
	"fmt"

	"github.com/sysprog21/simplefs-go/common"
	"github.com/sysprog21/simplefs-go/dir"
	"github.com/sysprog21/simplefs-go/extent"
	"github.com/sysprog21/simplefs-go/inode"
	"github.com/sysprog21/simplefs-go/util"
)

// Rename flags, matching the renameat2 numbering.
const (
	RenameNoReplace uint32 = 1 << 0
	RenameExchange  uint32 = 1 << 1
	RenameWhiteout  uint32 = 1 << 2
)

// Lookup resolves name within directory dirIno. The directory's atime is
// stamped whether or not the name is found.
func (fs *Fs) Lookup(dirIno common.Inum, name string) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return common.NULLINUM, err
	}
	ino, lerr := dir.Lookup(fs.c, idx, name)
	dirIp.Atime = fs.clock()
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return common.NULLINUM, err
	}
	return ino, lerr
}

// newInode reserves an inode, stamps ownership and times, and for non-link
// modes reserves and scrubs an extent-index block.
func (fs *Fs) newInode(mode common.Mode, uid, gid uint32) (*inode.Inode, error) {
	if fs.sb.NrFreeInodes == 0 {
		return nil, common.ErrNoSpace
	}
	if !common.IsLink(mode) && fs.sb.NrFreeBlocks == 0 {
		return nil, common.ErrNoSpace
	}
	ino, err := fs.sb.GetFreeInode(fs.c)
	if err != nil {
		return nil, err
	}
	if ino == common.NULLINUM {
		return nil, common.ErrNoSpace
	}
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		fs.sb.PutInode(fs.c, ino)
		return nil, err
	}
	now := fs.clock()
	ip.Mode = mode
	ip.Uid = uid
	ip.Gid = gid
	ip.SetTimes(now, true)
	if common.IsLink(mode) {
		ip.Nlink = 1
		return ip, nil
	}
	bno, err := fs.sb.GetFreeBlocks(fs.c, 1)
	if err == nil && bno == common.NULLBNUM {
		err = common.ErrNoSpace
	}
	if err != nil {
		fs.itab.Forget(ino)
		fs.sb.PutInode(fs.c, ino)
		return nil, err
	}
	fs.c.ZeroBuf(bno)
	ip.EiBlock = bno
	ip.Blocks = 1
	if common.IsDir(mode) {
		ip.Size = common.BlockSize
		ip.Nlink = 2
	} else {
		ip.Size = 0
		ip.Nlink = 1
	}
	return ip, nil
}

// dropNewInode undoes newInode after a failed directory insert.
func (fs *Fs) dropNewInode(ip *inode.Inode) {
	if !common.IsLink(ip.Mode) {
		fs.sb.PutBlocks(fs.c, ip.EiBlock, 1)
	}
	ino := ip.Ino
	*ip = inode.Inode{Ino: ino}
	inode.WriteInode(fs.sb, fs.c, ip)
	fs.itab.Forget(ino)
	fs.sb.PutInode(fs.c, ino)
}

// Create makes a regular file or directory named name under dirIno and
// returns the new inode number.
func (fs *Fs) Create(dirIno common.Inum, name string, mode common.Mode, uid, gid uint32) (common.Inum, error) {
	if !common.IsReg(mode) && !common.IsDir(mode) {
		return common.NULLINUM, fmt.Errorf("%w: unsupported mode %#x", common.ErrInval, mode)
	}
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return common.NULLINUM, err
	}
	if idx.NrFiles == common.MaxSubfiles {
		return common.NULLINUM, common.ErrLinkLimit
	}
	if _, err := dir.Lookup(fs.c, idx, name); err == nil {
		return common.NULLINUM, common.ErrExists
	} else if !errors.Is(err, common.ErrNotFound) {
		return common.NULLINUM, err
	}
	ip, err := fs.newInode(mode, uid, gid)
	if err != nil {
		return common.NULLINUM, err
	}
	if err := dir.Insert(fs.c, fs.sb, idx, name, ip.Ino); err != nil {
		fs.dropNewInode(ip)
		return common.NULLINUM, err
	}
	if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
		return common.NULLINUM, err
	}
	dirIp.SetTimes(fs.clock(), true)
	if common.IsDir(mode) {
		dirIp.Nlink++
	}
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return common.NULLINUM, err
	}
	if err := fs.sb.Sync(fs.c); err != nil {
		return common.NULLINUM, err
	}
	util.DPrintf(2, "Create: %q ino %d in dir %d", name, ip.Ino, dirIno)
	return ip.Ino, nil
}

// Mkdir makes a directory with the given permission bits.
func (fs *Fs) Mkdir(dirIno common.Inum, name string, perm common.Mode, uid, gid uint32) (common.Inum, error) {
	return fs.Create(dirIno, name, common.ModeDir|(perm&^common.ModeFmt), uid, gid)
}

// Symlink makes a symbolic link to target. The target is stored inline in
// the inode, so it is bounded by SymlinkLen-1 bytes.
func (fs *Fs) Symlink(dirIno common.Inum, name string, target string, uid, gid uint32) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return common.NULLINUM, err
	}
	if uint32(len(target))+1 > common.SymlinkLen {
		return common.NULLINUM, common.ErrNameTooLong
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return common.NULLINUM, err
	}
	if idx.NrFiles == common.MaxSubfiles {
		return common.NULLINUM, common.ErrLinkLimit
	}
	if _, err := dir.Lookup(fs.c, idx, name); err == nil {
		return common.NULLINUM, common.ErrExists
	} else if !errors.Is(err, common.ErrNotFound) {
		return common.NULLINUM, err
	}
	ip, err := fs.newInode(common.ModeLink|0o777, uid, gid)
	if err != nil {
		return common.NULLINUM, err
	}
	ip.SetSymlink(target)
	ip.Size = uint32(len(target))
	if err := dir.Insert(fs.c, fs.sb, idx, name, ip.Ino); err != nil {
		fs.dropNewInode(ip)
		return common.NULLINUM, err
	}
	if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
		return common.NULLINUM, err
	}
	dirIp.SetTimes(fs.clock(), true)
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return common.NULLINUM, err
	}
	if err := fs.sb.Sync(fs.c); err != nil {
		return common.NULLINUM, err
	}
	return ip.Ino, nil
}

// ReadLink returns the target of a symbolic link.
func (fs *Fs) ReadLink(ino common.Inum) (string, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return "", err
	}
	if !common.IsLink(ip.Mode) {
		return "", fmt.Errorf("%w: inode %d is not a symlink", common.ErrInval, ino)
	}
	return ip.Symlink(), nil
}

// Link adds name in dirIno as another hard link to ino. Directories cannot
// be hard-linked.
func (fs *Fs) Link(dirIno common.Inum, name string, ino common.Inum) error {
	if err := checkName(name); err != nil {
		return err
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return err
	}
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return err
	}
	if common.IsDir(ip.Mode) {
		return fmt.Errorf("%w: cannot link a directory", common.ErrIsDir)
	}
	if idx.NrFiles == common.MaxSubfiles {
		return common.ErrLinkLimit
	}
	if _, err := dir.Lookup(fs.c, idx, name); err == nil {
		return common.ErrExists
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if err := dir.Insert(fs.c, fs.sb, idx, name, ino); err != nil {
		return err
	}
	now := fs.clock()
	ip.Nlink++
	ip.Ctime = now
	if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
		return err
	}
	dirIp.SetTimes(now, true)
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return err
	}
	return fs.sb.Sync(fs.c)
}

// unlinkLocked removes (name -> ip) from dirIp and drops one link. On the
// last link the inode's blocks are released and scrubbed and the inode
// record is zeroed. Caller holds the directory lock and has verified the
// binding exists.
func (fs *Fs) unlinkLocked(dirIp *inode.Inode, idx *extent.Index, name string, ip *inode.Inode) error {
	if err := dir.Remove(fs.c, fs.sb, idx, name, ip.Ino); err != nil {
		return err
	}
	now := fs.clock()
	dirIp.SetTimes(now, true)
	if common.IsDir(ip.Mode) {
		dirIp.Nlink--
		ip.Nlink--
	}
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return err
	}
	if ip.Nlink > 1 {
		ip.Nlink--
		ip.Ctime = now
		if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
			return err
		}
		return fs.sb.Sync(fs.c)
	}

	// last link: release and scrub everything the inode owns
	if !common.IsLink(ip.Mode) {
		fidx, err := extent.Load(fs.c, ip.EiBlock)
		if err == nil {
			for ei := range fidx.Extents {
				e := &fidx.Extents[ei]
				if e.Empty() {
					break
				}
				for bi := uint32(0); bi < e.EeLen; bi++ {
					fs.c.ZeroBuf(e.EeStart + bi)
				}
				if err := fs.sb.PutBlocks(fs.c, e.EeStart, e.EeLen); err != nil {
					return err
				}
			}
			fs.c.ZeroBuf(ip.EiBlock)
		}
		if err := fs.sb.PutBlocks(fs.c, ip.EiBlock, 1); err != nil {
			return err
		}
	}
	ino := ip.Ino
	*ip = inode.Inode{Ino: ino}
	if err := inode.WriteInode(fs.sb, fs.c, ip); err != nil {
		return err
	}
	if err := fs.sb.PutInode(fs.c, ino); err != nil {
		return err
	}
	fs.itab.Forget(ino)
	util.DPrintf(2, "unlink: freed ino %d", ino)
	return fs.sb.Sync(fs.c)
}

// Unlink removes name from dirIno. Directories are removed with Rmdir.
func (fs *Fs) Unlink(dirIno common.Inum, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return err
	}
	ino, err := dir.Lookup(fs.c, idx, name)
	if err != nil {
		return err
	}
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return err
	}
	if common.IsDir(ip.Mode) {
		return fmt.Errorf("%w: %q", common.ErrIsDir, name)
	}
	return fs.unlinkLocked(dirIp, idx, name, ip)
}

// Rmdir removes an empty directory.
func (fs *Fs) Rmdir(dirIno common.Inum, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	fs.locks.Acquire(dirIno)
	defer fs.locks.Release(dirIno)
	dirIp, idx, err := fs.getDir(dirIno)
	if err != nil {
		return err
	}
	ino, err := dir.Lookup(fs.c, idx, name)
	if err != nil {
		return err
	}
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return err
	}
	if !common.IsDir(ip.Mode) {
		return fmt.Errorf("%w: %q", common.ErrNotDir, name)
	}
	if ip.Nlink > 2 {
		return common.ErrNotEmpty
	}
	cidx, err := extent.Load(fs.c, ip.EiBlock)
	if err != nil {
		return err
	}
	if cidx.NrFiles != 0 {
		return common.ErrNotEmpty
	}
	return fs.unlinkLocked(dirIp, idx, name, ip)
}

// Rename moves oldName in oldDir to newName in newDir. Exchange and
// whiteout are not supported. An existing newName fails with ErrExists.
func (fs *Fs) Rename(oldDir common.Inum, oldName string, newDir common.Inum, newName string, flags uint32) error {
	if flags&(RenameExchange|RenameWhiteout) != 0 {
		return fmt.Errorf("%w: unsupported rename flags %#x", common.ErrInval, flags)
	}
	if err := checkName(oldName); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}
	locks := dirLocks(oldDir, newDir)
	fs.locks.AcquireOrdered(locks)
	defer fs.locks.ReleaseOrdered(locks)

	oldIp, oldIdx, err := fs.getDir(oldDir)
	if err != nil {
		return err
	}
	srcIno, err := dir.Lookup(fs.c, oldIdx, oldName)
	if err != nil {
		return err
	}
	src, err := fs.itab.Iget(fs.sb, fs.c, srcIno)
	if err != nil {
		return err
	}

	if oldDir == newDir {
		if oldName == newName {
			return nil
		}
		if _, err := dir.Lookup(fs.c, oldIdx, newName); err == nil {
			return common.ErrExists
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if err := dir.RenameInPlace(fs.c, oldIdx, oldName, newName, srcIno); err != nil {
			return err
		}
		oldIp.SetTimes(fs.clock(), true)
		if err := inode.WriteInode(fs.sb, fs.c, oldIp); err != nil {
			return err
		}
		return fs.sb.Sync(fs.c)
	}

	newIp, newIdx, err := fs.getDir(newDir)
	if err != nil {
		return err
	}
	if _, err := dir.Lookup(fs.c, newIdx, newName); err == nil {
		return common.ErrExists
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	if newIdx.NrFiles == common.MaxSubfiles {
		return common.ErrLinkLimit
	}
	if err := dir.Insert(fs.c, fs.sb, newIdx, newName, srcIno); err != nil {
		return err
	}
	now := fs.clock()
	newIp.SetTimes(now, true)
	if common.IsDir(src.Mode) {
		newIp.Nlink++
	}
	if err := inode.WriteInode(fs.sb, fs.c, newIp); err != nil {
		return err
	}
	if err := dir.Remove(fs.c, fs.sb, oldIdx, oldName, srcIno); err != nil {
		return err
	}
	oldIp.SetTimes(now, true)
	if common.IsDir(src.Mode) {
		oldIp.Nlink--
	}
	if err := inode.WriteInode(fs.sb, fs.c, oldIp); err != nil {
		return err
	}
	util.DPrintf(2, "Rename: %q dir %d -> %q dir %d", oldName, oldDir, newName, newDir)
	return fs.sb.Sync(fs.c)
}

// ReadDir lists the entries of directory ino in traversal order.
func (fs *Fs) ReadDir(ino common.Inum) ([]dir.Entry, error) {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	dirIp, idx, err := fs.getDir(ino)
	if err != nil {
		return nil, err
	}
	ents, err := dir.Readdir(fs.c, idx)
	if err != nil {
		return nil, err
	}
	dirIp.Atime = fs.clock()
	if err := inode.WriteInode(fs.sb, fs.c, dirIp); err != nil {
		return nil, err
	}
	return ents, nil
}

// SetAttr updates permission bits and ownership. The file type bits of
// mode are ignored.
func (fs *Fs) SetAttr(ino common.Inum, perm common.Mode, uid, gid uint32) error {
	fs.locks.Acquire(ino)
	defer fs.locks.Release(ino)
	ip, err := fs.itab.Iget(fs.sb, fs.c, ino)
	if err != nil {
		return err
	}
	ip.Mode = (ip.Mode & common.ModeFmt) | (perm &^ common.ModeFmt)
	ip.Uid = uid
	ip.Gid = gid
	ip.Ctime = fs.clock()
	return inode.WriteInode(fs.sb, fs.c, ip)
}

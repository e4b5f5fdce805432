package ethdma

import (
	"fmt"
	"io"
	"unicode"
)

// HexDump writes a hex dump of data to w, 16 bytes per line followed by
// their ASCII form. Non-printable bytes show as '.'.
//
// Example:
//
//	HexDump(os.Stdout, []byte("Hello, World!"))
//
// Output:
//
//	48 65 6C 6C 6F 2C 20 57 6F 72 6C 64 21        | Hello, World!
func HexDump(w io.Writer, data []byte) {
	const bytesPerLine = 16
	for i := 0; i < len(data); i += bytesPerLine {
		end := i + bytesPerLine
		if end > len(data) {
			end = len(data)
		}

		for j := i; j < end; j++ {
			fmt.Fprintf(w, "%02X ", data[j])
		}
		// pad a short last line
		for j := end; j < i+bytesPerLine; j++ {
			fmt.Fprint(w, "   ")
		}

		fmt.Fprint(w, " | ")
		for j := i; j < end; j++ {
			if unicode.IsPrint(rune(data[j])) {
				fmt.Fprintf(w, "%c", data[j])
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprintln(w)
	}
}

func ringMark(idx, a, b uint32, ma, mb string) string {
	switch {
	case idx == a && idx == b:
		return ma + mb
	case idx == a:
		return ma + " "
	case idx == b:
		return " " + mb
	}
	return "  "
}

// DumpTxRing writes every descriptor of ring to w.
// C marks CleanIdx and N marks CurTxIdx.
func DumpTxRing(w io.Writer, ring *TxRing) {
	for i := uint32(0); i < ring.Size; i++ {
		d := ring.Load(i)
		fmt.Fprintf(w, "%s %4d [%#016x] %08x %08x %08x %08x len=%d\n",
			ringMark(i, ring.CleanIdx, ring.CurTxIdx, "C", "N"),
			i, ring.descPhys(i), d[0], d[1], d[2], d[3], ring.Swcx[i].Len)
	}
}

// DumpRxRing writes every descriptor of ring to w.
// R marks RefillIdx and N marks CurRxIdx.
func DumpRxRing(w io.Writer, ring *RxRing) {
	for i := uint32(0); i < ring.Size; i++ {
		d := ring.Load(i)
		fmt.Fprintf(w, "%s %4d [%#016x] %08x %08x %08x %08x flags=%#x\n",
			ringMark(i, ring.RefillIdx, ring.CurRxIdx, "R", "N"),
			i, ring.descPhys(i), d[0], d[1], d[2], d[3], ring.Swcx[i].Flags)
	}
}

// RxDescInfo is the decoded form of one Rx write-back descriptor.
type RxDescInfo struct {
	Own     bool
	First   bool
	Last    bool
	Error   bool
	Context bool
	Cx      RxPktContext
}

// DecodeRxDesc decodes an Rx write-back descriptor the way the receive
// path does, without touching a ring.
func DecodeRxDesc(mac MacType, desc Desc) (RxDescInfo, error) {
	ops := newMacOps(mac)
	if ops == nil {
		return RxDescInfo{}, fmt.Errorf("%w: MAC type %d", ErrInvalidArg, mac)
	}
	info := RxDescInfo{
		Own:     desc[3]&Rdes3OWN != 0,
		First:   desc[3]&Rdes3FD != 0,
		Last:    desc[3]&Rdes3LD != 0,
		Error:   desc[3]&ops.rxErrBits() != 0,
		Context: ops.rxHasContext(desc),
	}
	cx := &info.Cx
	cx.PktLen = desc[3] & Rdes3PktLen
	if info.First && info.Last && !info.Error {
		cx.Flags |= PktCxValid
	}
	ops.getRxCsum(desc, cx)
	ops.getRxVlan(desc, cx)
	ops.getRxHash(desc, cx)
	return info, nil
}

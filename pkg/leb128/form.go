package leb128

// Form is a DWARF attribute form code (DW_FORM_*).
type Form uint64

// The subset of forms spec.md §6 requires support for.
const (
	FormAddr        Form = 0x01
	FormBlock2      Form = 0x03
	FormBlock4      Form = 0x04
	FormData2       Form = 0x05
	FormData4       Form = 0x06
	FormData8       Form = 0x07
	FormString      Form = 0x08
	FormBlock       Form = 0x09
	FormBlock1      Form = 0x0a
	FormData1       Form = 0x0b
	FormFlag        Form = 0x0c
	FormSdata       Form = 0x0d
	FormStrp        Form = 0x0e
	FormUdata       Form = 0x0f
	FormRefAddr     Form = 0x10
	FormRef1        Form = 0x11
	FormRef2        Form = 0x12
	FormRef4        Form = 0x13
	FormRef8        Form = 0x14
	FormRefUdata    Form = 0x15
	FormIndirect    Form = 0x16
	FormSecOffset   Form = 0x17
	FormExprloc     Form = 0x18
	FormFlagPresent Form = 0x19
	FormStrx        Form = 0x1a
	FormAddrx       Form = 0x1b
	FormRefSup4     Form = 0x1c
	FormStrpSup     Form = 0x1d
	FormData16      Form = 0x1e
	FormLineStrp    Form = 0x1f
	FormRefSig8     Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx    Form = 0x22
	FormRnglistx    Form = 0x23
	FormRefSup8     Form = 0x24
	FormStrx1       Form = 0x25
	FormStrx2       Form = 0x26
	FormStrx3       Form = 0x27
	FormStrx4       Form = 0x28
	FormAddrx1      Form = 0x29
	FormAddrx2      Form = 0x2a
	FormAddrx3      Form = 0x2b
	FormAddrx4      Form = 0x2c
)

// SkipSize returns the number of bytes an attribute of the given form
// occupies in .debug_info, without interpreting the value, so DIE traversal
// can advance past attributes it does not need. addressSize and offsetSize
// are the CU's address size (fixed at 8 for this target) and offset size
// (4 or 8). implicitConst forms occupy zero bytes in the DIE itself; their
// value lives in the abbreviation table.
func SkipSize(form Form, data []byte, addressSize, offsetSize int) int {
	switch form {
	case FormAddr:
		return addressSize
	case FormBlock1:
		n := int(data[0])
		return 1 + n
	case FormBlock2:
		n := int(data[0]) | int(data[1])<<8
		return 2 + n
	case FormBlock4:
		n := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
		return 4 + n
	case FormData1, FormRef1, FormStrx1, FormAddrx1, FormFlag:
		return 1
	case FormData2, FormRef2, FormStrx2, FormAddrx2:
		return 2
	case FormStrx3, FormAddrx3:
		return 3
	case FormData4, FormRef4, FormStrx4, FormAddrx4, FormRefSup4:
		return 4
	case FormData8, FormRef8, FormRefSig8, FormRefSup8:
		return 8
	case FormData16:
		return 16
	case FormString:
		i := 0
		for data[i] != 0 {
			i++
		}
		return i + 1
	case FormBlock, FormExprloc:
		length, n := Uint(data)
		return n + int(length)
	case FormSdata:
		_, n := Int(data)
		return n
	case FormUdata, FormRefUdata, FormStrx, FormAddrx, FormLoclistx, FormRnglistx:
		_, n := Uint(data)
		return n
	case FormStrp, FormLineStrp, FormSecOffset, FormRefAddr, FormStrpSup:
		return offsetSize
	case FormFlagPresent, FormImplicitConst:
		return 0
	default:
		// Unknown/indirect form: cannot safely skip. Caller should treat
		// this as a warning and abandon the remainder of the DIE.
		return -1
	}
}

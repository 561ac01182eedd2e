// File: localsocket/sddl_windows.go
//go:build windows

//
// Default pipe security: full access for the creating user and the SYSTEM
// account, nothing for anyone else. Listeners are local-only; remote
// clients are rejected at the pipe level.

package localsocket

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/osipc/localsock/api"
)

// currentUserSecurity builds SECURITY_ATTRIBUTES granting GENERIC_ALL to the
// current token user and SYSTEM, with a protected DACL so inherited ACEs
// cannot widen it.
func currentUserSecurity() (*windows.SecurityAttributes, error) {
	token := windows.GetCurrentProcessToken()
	user, err := token.GetTokenUser()
	if err != nil {
		return nil, api.NewOpError("listen", "", api.ErrPermissionDenied, err)
	}
	sddl := fmt.Sprintf("D:P(A;;GA;;;%s)(A;;GA;;;SY)", user.User.Sid.String())
	sd, err := windows.SecurityDescriptorFromString(sddl)
	if err != nil {
		return nil, api.NewOpError("listen", "", api.ErrPermissionDenied, err)
	}
	sa := &windows.SecurityAttributes{
		SecurityDescriptor: sd,
	}
	sa.Length = uint32(unsafe.Sizeof(*sa))
	return sa, nil
}

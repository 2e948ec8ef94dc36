// Package api
// Author: momentics <momentics@gmail.com>
//
// Shared vocabulary of loofah: event masks, socket handles and the
// classified error taxonomy every engine reports through.
package api

// Package command maps driver requests onto registry operations.
//
// A Command names one operation and its inputs. Execute runs it against a
// registry for a given caller. Commands may also be signed with a secp256k1
// key, in which case the caller is the signer's EVM style address:
//
//	signed, err := command.Sign(privateKeyHex, command.Command{Op: command.OpPublish, Text: "haiku"}, nonce)
//	caller, err := command.Verify(signed)
//	result, err := command.Execute(ctx, poems, caller, signed.Command)
package command

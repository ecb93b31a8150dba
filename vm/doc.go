// Package vm implements the Candy virtual machine.
//
// The VM executes chunks produced by a Candy front end. Its core parts are:
//   - Values: a tagged sum of null, booleans, numbers, strings, collections,
//     classes, instances, callables and error objects
//   - Frames: per-call slots and operand stack, kept on a bounded FrameStack
//   - Upvalues: open or closed cells shared by the closures that capture them
//   - Classes: single inheritance with copy-down method tables
//   - The dispatch loop, which decodes one instruction at a time
//   - Errors: ErrorObject values unwound against per-body handler tables
//
// Host code drives the VM through (*VM).Run and registers native callables
// through NativeSpec tables. Natives receive an *Env handle that lets them
// call back into Candy code, read globals and inspect the frame stack.
package vm

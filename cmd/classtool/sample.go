package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/manifest"
	"github.com/CursedJvmSharp/ObjectWeb.Asm-sub001/pkg/classfile"
)

// cmdSample assembles a small demonstration class exercising constants,
// fields, branches, a loop and exception handling, then writes it to the
// output directory (or disassembles it to stdout with -p).
func cmdSample(m *manifest.Manifest, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	outDir := fs.String("o", "", "Output directory (defaults to the manifest's output-dir)")
	printOut := fs.Bool("p", false, "Disassemble to stdout instead of writing a file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := assembleSample(m.Target.ClassVersion)
	if err != nil {
		return fmt.Errorf("assembling sample: %w", err)
	}

	if *printOut {
		cf, err := classfile.Parse(data)
		if err != nil {
			return fmt.Errorf("sample does not parse back: %w", err)
		}
		fmt.Print(cf.Disassemble())
		return nil
	}

	dir := *outDir
	if dir == "" {
		dir = m.OutputDirPath()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, "Sample.class")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Infof("wrote %s (%d bytes)", path, len(data))
	fmt.Println(path)
	return nil
}

func assembleSample(version int) ([]byte, error) {
	cw := classfile.NewClassWriter(version, classfile.AccPublic|classfile.AccSuper,
		"com/example/Sample", "java/lang/Object")
	cw.SetSourceFile("Sample.java")

	if err := cw.NewField(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal,
		"GREETING", "Ljava/lang/String;", "hello"); err != nil {
		return nil, err
	}

	// default constructor
	init := cw.NewMethod(classfile.AccPublic, "<init>", "()V")
	init.VarInsn(classfile.Aload, 0)
	init.MethodInsn(classfile.Invokespecial, "java/lang/Object", "<init>", "()V", false)
	init.Insn(classfile.Return)

	// static int add(int, int)
	add := cw.NewMethod(classfile.AccPublic|classfile.AccStatic, "add", "(II)I")
	add.VarInsn(classfile.Iload, 0)
	add.VarInsn(classfile.Iload, 1)
	add.Insn(classfile.Iadd)
	add.Insn(classfile.Ireturn)

	// static int max(int, int) - conditional branch, merged frame
	max := cw.NewMethod(classfile.AccPublic|classfile.AccStatic, "max", "(II)I")
	second := classfile.NewLabel()
	max.VarInsn(classfile.Iload, 0)
	max.VarInsn(classfile.Iload, 1)
	max.JumpInsn(classfile.IfIcmplt, second)
	max.VarInsn(classfile.Iload, 0)
	max.Insn(classfile.Ireturn)
	max.Bind(second)
	max.VarInsn(classfile.Iload, 1)
	max.Insn(classfile.Ireturn)

	// static int sum(int) - backward branch
	sum := cw.NewMethod(classfile.AccPublic|classfile.AccStatic, "sum", "(I)I")
	loop := classfile.NewLabel()
	done := classfile.NewLabel()
	sum.Insn(classfile.Iconst0)
	sum.VarInsn(classfile.Istore, 1)
	sum.Bind(loop)
	sum.VarInsn(classfile.Iload, 0)
	sum.JumpInsn(classfile.Ifle, done)
	sum.VarInsn(classfile.Iload, 1)
	sum.VarInsn(classfile.Iload, 0)
	sum.Insn(classfile.Iadd)
	sum.VarInsn(classfile.Istore, 1)
	sum.IincInsn(0, -1)
	sum.JumpInsn(classfile.Goto, loop)
	sum.Bind(done)
	sum.VarInsn(classfile.Iload, 1)
	sum.Insn(classfile.Ireturn)

	// static int parse(String) - try/catch
	parse := cw.NewMethod(classfile.AccPublic|classfile.AccStatic, "parse", "(Ljava/lang/String;)I")
	tryStart := classfile.NewLabel()
	tryEnd := classfile.NewLabel()
	handler := classfile.NewLabel()
	parse.TryCatch(tryStart, tryEnd, handler, "java/lang/NumberFormatException")
	parse.Bind(tryStart)
	parse.VarInsn(classfile.Aload, 0)
	parse.MethodInsn(classfile.Invokestatic, "java/lang/Integer", "parseInt",
		"(Ljava/lang/String;)I", false)
	parse.Bind(tryEnd)
	parse.Insn(classfile.Ireturn)
	parse.Bind(handler)
	parse.Insn(classfile.Pop)
	parse.Insn(classfile.Iconst0)
	parse.Insn(classfile.Ireturn)

	return cw.ToBytes()
}

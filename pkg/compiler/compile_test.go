package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"cminus/pkg/semantic"
	"cminus/pkg/tm"
)

const stepLimit = 1_000_000

// runCode compiles source, runs it on the TM simulator with the given
// input and returns what it printed and the halted machine.
func runCode(t *testing.T, source, input string) (string, *tm.Machine) {
	t.Helper()
	res, err := Compile(source, Options{EmitCode: true})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if bugs := res.Code.Bugs(); bugs != 0 {
		t.Fatalf("code generator reported %d bugs:\n%s", bugs, res.Code.Listing())
	}

	var out bytes.Buffer
	vm := tm.NewMachine(res.Code.Program())
	vm.Output = &out
	vm.SetInput(strings.NewReader(input))
	if err := vm.Run(stepLimit); err != nil {
		t.Fatalf("Run failed: %v\nListing:\n%s", err, res.Code.Listing())
	}
	return out.String(), vm
}

func TestScenarioGlobalArithmetic(t *testing.T) {
	out, _ := runCode(t, `int x; void main(void) { x = 2 + 3; output(x); }`, "")
	be.Equal(t, out, "5\n")
}

func TestScenarioCallRestoresStack(t *testing.T) {
	src := `int f(int a, int b) { return a - b; }
void main(void) { output(f(10, 3)); }`
	out, vm := runCode(t, src, "")
	be.Equal(t, out, "7\n")
	be.Equal(t, vm.Reg[tm.SP], vm.Reg[tm.GP])
}

func TestScenarioArrayElement(t *testing.T) {
	src := `int arr[5];
void main(void) { arr[2] = 9; output(arr[2]); }`
	out, vm := runCode(t, src, "")
	be.Equal(t, out, "9\n")
	gp := vm.Reg[tm.GP]
	be.Equal(t, vm.DMem[gp-1-2], 9)
	be.Equal(t, vm.Reg[tm.SP], gp-5)
}

func TestScenarioWhileLoop(t *testing.T) {
	src := `void main(void) {
	int n; int sum; int iterations;
	n = 3; sum = 0; iterations = 0;
	while (n > 0) {
		sum = sum + n;
		n = n - 1;
		iterations = iterations + 1;
	}
	output(sum);
	output(iterations);
}`
	out, _ := runCode(t, src, "")
	be.Equal(t, out, "6\n3\n")

	res, err := Compile(src, Options{EmitCode: true})
	be.Err(t, err, nil)
	prog := res.Code.Program()
	var back, exits int
	for slot, in := range prog.Instructions {
		if in.Op == tm.LDA && in.R == tm.PC && in.S == tm.Zero && in.D < slot {
			back++
		}
		if in.Op == tm.JEQ && in.S == tm.Zero {
			exits++
			// the exit lands right after the backward jump
			jump := prog.Instructions[in.D-1]
			be.Equal(t, jump.Op, tm.LDA)
			be.Equal(t, jump.R, tm.PC)
			be.True(t, jump.D < in.D)
		}
	}
	be.Equal(t, back, 1)
	be.Equal(t, exits, 1)
}

func TestScenarioUndefinedFunctionStopsBeforeCodegen(t *testing.T) {
	res, err := Compile(`void main(void) { missing(1); }`, Options{EmitCode: true})
	be.Err(t, err, semantic.ErrUndefinedFunction)
	be.True(t, res == nil)
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		input string
		want  string
	}{
		{
			name: "Factorial",
			src: `int fact(int n) {
	if (n <= 1) return 1;
	return n * fact(n - 1);
}
void main(void) { output(fact(input())); }`,
			input: "6",
			want:  "720\n",
		},
		{
			name: "GCD",
			src: `int gcd(int u, int v) {
	if (v == 0) return u;
	else return gcd(v, u - u / v * v);
}
void main(void) {
	int x; int y;
	x = input(); y = input();
	output(gcd(x, y));
}`,
			input: "84 36",
			want:  "12\n",
		},
		{
			name: "SelectionSort",
			src: `int x[5];
int minloc(int a[], int low, int high) {
	int i; int x; int k;
	k = low;
	x = a[low];
	i = low + 1;
	while (i < high) {
		if (a[i] < x) { x = a[i]; k = i; }
		i = i + 1;
	}
	return k;
}
void sort(int a[], int low, int high) {
	int i; int k;
	i = low;
	while (i < high - 1) {
		int t;
		k = minloc(a, i, high);
		t = a[k];
		a[k] = a[i];
		a[i] = t;
		i = i + 1;
	}
}
void main(void) {
	int i;
	i = 0;
	while (i < 5) { x[i] = input(); i = i + 1; }
	sort(x, 0, 5);
	i = 0;
	while (i < 5) { output(x[i]); i = i + 1; }
}`,
			input: "5 3 9 1 7",
			want:  "1\n3\n5\n7\n9\n",
		},
		{
			name: "Shadowing",
			src: `int x;
void main(void) {
	int x;
	x = 1;
	{ int x; x = 2; output(x); }
	output(x);
}`,
			want: "2\n1\n",
		},
		{
			name: "Relational",
			src: `void main(void) {
	output(1 < 2); output(2 < 1);
	output(2 <= 2); output(3 > 2);
	output(2 >= 3); output(4 == 4); output(4 != 4);
}`,
			want: "1\n0\n1\n1\n0\n1\n0\n",
		},
		{
			name: "NegativeResults",
			src:  `void main(void) { output(3 - 10); output(0 - 7 / 2); }`,
			want: "-7\n-3\n",
		},
		{
			name: "AssignmentValue",
			src: `void main(void) {
	int a; int b;
	a = b = 4;
	output(a + b);
}`,
			want: "8\n",
		},
		{
			name: "LocalArray",
			src: `void main(void) {
	int a[3]; int i;
	i = 0;
	while (i < 3) { a[i] = i * i; i = i + 1; }
	output(a[0] + a[1] + a[2]);
}`,
			want: "5\n",
		},
		{
			name: "ArrayParamWritesThrough",
			src: `void fill(int a[], int v) { a[0] = v; a[1] = v + 1; }
void main(void) {
	int b[2];
	fill(b, 40);
	output(b[0] + b[1]);
}`,
			want: "81\n",
		},
		{
			name: "VoidReturn",
			src: `void show(int n) {
	if (n == 0) return;
	output(n);
}
void main(void) { show(0); show(3); }`,
			want: "3\n",
		},
		{
			name: "EmptyStatements",
			src:  `void main(void) { ; ; { } if (1) ; output(1); }`,
			want: "1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, vm := runCode(t, tt.src, tt.input)
			be.Equal(t, out, tt.want)
			be.True(t, vm.Halted)
		})
	}
}

func TestCompileOptions(t *testing.T) {
	src := `int g;
void main(void) { int x; x = 1; g = x; }`

	t.Run("Quiet", func(t *testing.T) {
		var listing bytes.Buffer
		res, err := Compile(src, Options{Listing: &listing})
		be.Err(t, err, nil)
		be.True(t, res.Tree != nil)
		be.True(t, res.Code == nil)
		be.Equal(t, listing.String(), "")
	})

	t.Run("PrintTree", func(t *testing.T) {
		var listing bytes.Buffer
		_, err := Compile(src, Options{PrintTree: true, Listing: &listing})
		be.Err(t, err, nil)
		be.True(t, strings.HasPrefix(listing.String(), "Program\n  Var declaration: g (global, offset 0)\n"))
	})

	t.Run("PrintScopes", func(t *testing.T) {
		var listing bytes.Buffer
		_, err := Compile(src, Options{PrintScopes: true, Listing: &listing})
		be.Err(t, err, nil)
		text := listing.String()
		block := strings.Index(text, "Block at line 2:")
		params := strings.Index(text, "Parameters of main:")
		globals := strings.Index(text, "Globals:")
		be.True(t, block >= 0)
		be.True(t, block < params)
		be.True(t, params < globals)
	})

	t.Run("Trace", func(t *testing.T) {
		plain, err := Compile(src, Options{EmitCode: true})
		be.Err(t, err, nil)
		traced, err := Compile(src, Options{EmitCode: true, Trace: true})
		be.Err(t, err, nil)
		be.True(t, !strings.Contains(plain.Code.Listing(), "*"))
		be.True(t, strings.Contains(traced.Code.Listing(), "* Standard prelude:"))
		be.Equal(t, len(plain.Code.Program().Instructions), len(traced.Code.Program().Instructions))
	})

	t.Run("ListingRoundTrip", func(t *testing.T) {
		res, err := Compile(src, Options{EmitCode: true, Trace: true})
		be.Err(t, err, nil)
		loaded, err := tm.LoadString(res.Code.Listing())
		be.Err(t, err, nil)
		be.Equal(t, loaded.Instructions, res.Code.Program().Instructions)
	})
}

func TestCompileLexError(t *testing.T) {
	_, err := Compile("void main(void) { $ }", Options{})
	be.Err(t, err, ErrLex)
	be.Err(t, err, "unexpected character '$' on line 1")
}

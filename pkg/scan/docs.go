package scan

/*
Package scan runs the preflight container certification tool against images and
turns its free-text output into result rows.

The main functions and types in this package are:

Scanner
    Runs `preflight check container --platform <platform> <image> [-d <auth.json>]`
    once per image. Each invocation gets its own PFLT_LOGFILE and PFLT_ARTIFACTS,
    so concurrent scans never share files and the parent environment is untouched.

    ScanImage(ctx, target) *types.ImageScanResult
        Scans one image. A non-zero exit is reported in ExitErr and the rows
        scraped so far are kept; a tool that cannot start is reported in Err.

    CheckTool() (string, error)
        Looks the tool up on PATH.

    CheckVersion(ctx) (string, error)
        Verifies `preflight --version` is at least MinVersion.

Runner
    Scans a list of images with at most N concurrent subprocesses and returns
    the results in input order.

ParseCheckResults, ParseModifiedFiles, ParseVerdict, BuildRows
    The log scraping. A line carrying both check=<name> and result=<value>
    is one test case; file=<path> tokens of the log feed the modified files of
    a failed HasModifiedFiles check; "result: <VERDICT>" in the log (or
    "Preflight result: <VERDICT>" on the console) is the image verdict.

Example usage:

    scanner := scan.New(logger, scan.Options{AuthJSON: "auth.json"})
    runner := scan.NewRunner(scanner, 2, nil)
    for _, res := range runner.Run(ctx, targets) {
        fmt.Println(res.Target.DisplayName(), res.Verdict)
    }
*/

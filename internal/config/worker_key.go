package config

type WorkerKeyStruct struct {
	GenerateReportQueue string
}

var WorkerKey = &WorkerKeyStruct{
	GenerateReportQueue: "generate_report_queue",
}
